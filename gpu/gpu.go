//go:build !nogpu

// Package gpu registers the wgpu compute device for hardware-accelerated
// frame processing.
//
// Import this package to route frame copies and projective remaps through
// wgpu/hal compute shaders. If GPU initialization fails (no Vulkan
// available, no adapters), the registration is silently skipped and
// processing falls back to the host.
//
// Usage:
//
//	import _ "github.com/gogpu/framepipe/gpu" // enable GPU processing
package gpu

import (
	"github.com/gogpu/framepipe"
	gpuimpl "github.com/gogpu/framepipe/internal/gpu"
	"github.com/gogpu/gpucontext"
)

func init() {
	if err := framepipe.RegisterDevice(gpuimpl.NewDevice()); err != nil {
		framepipe.Logger().Warn("GPU device not available", "err", err)
	}
}

// SetDeviceProvider configures the registered device to use a shared GPU
// device from an external provider. This avoids creating a separate GPU
// instance and enables efficient device sharing.
//
// The provider should also expose HalDevice() any and HalQueue() any for
// direct HAL access; otherwise the device keeps its own instance.
func SetDeviceProvider(provider any) error {
	return framepipe.SetDeviceProvider(provider)
}

// ShareDevice is a typed convenience for callers holding a
// gpucontext.DeviceProvider (e.g., from a gogpu application).
func ShareDevice(provider gpucontext.DeviceProvider) error {
	return framepipe.SetDeviceProvider(provider)
}
