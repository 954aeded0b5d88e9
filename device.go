package framepipe

import (
	"errors"
	"sync"
)

// ErrFallbackToHost indicates the compute device cannot handle this
// operation. The caller should transparently fall back to host processing.
var ErrFallbackToHost = errors.New("framepipe: falling back to host processing")

// DeviceOp describes operation types for device capability checking.
type DeviceOp uint32

const (
	// OpCopy represents a full-frame plane copy.
	OpCopy DeviceOp = 1 << iota

	// OpRemap represents a projective resampling of the frame.
	OpRemap
)

// Matrix3 is a row-major 3x3 projective transform. OpRemap maps each
// destination pixel through the matrix to find its source sample.
type Matrix3 [9]float64

// Identity3 returns the identity transform.
func Identity3() Matrix3 {
	return Matrix3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// IsIdentity reports whether m is exactly the identity transform.
func (m Matrix3) IsIdentity() bool {
	return m == Identity3()
}

// Device is an optional compute device for frame transforms.
//
// When registered via RegisterDevice, stages route supported operations to
// the device. If the device returns ErrFallbackToHost, processing
// transparently falls back to the host path; any other error is surfaced
// as a device-execution failure.
//
// Implementations are provided by device backend packages. Users opt in
// via blank import:
//
//	import _ "github.com/gogpu/framepipe/gpu" // enables the wgpu device
type Device interface {
	// Name returns the device name (e.g., "wgpu").
	Name() string

	// Init initializes device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// CanProcess reports whether the device supports the given operation.
	// This is a fast check used to skip the device entirely for
	// unsupported operations.
	CanProcess(op DeviceOp) bool

	// Copy copies src into dst. Both buffers must share a layout.
	// Returns ErrFallbackToHost if the layout cannot be processed.
	Copy(dst, src *Buffer) error

	// Remap resamples src into dst through the projective transform m.
	// Returns ErrFallbackToHost if the layout cannot be processed.
	Remap(dst, src *Buffer, m Matrix3) error
}

// DeviceProviderAware is an optional interface for devices that can share
// GPU resources with an external provider (e.g., a gogpu window). When
// SetDeviceProvider is called, the device reuses the provided GPU device
// instead of creating its own.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

var (
	devMu sync.RWMutex
	dev   Device
)

// RegisterDevice registers a compute device for optional hardware
// processing.
//
// Only one device can be registered. Subsequent calls replace the previous
// one. The device's Init() method is called during registration. If Init()
// fails, the device is not registered and the error is returned.
//
// Typical usage via blank import in device backend packages:
//
//	func init() {
//	    framepipe.RegisterDevice(NewWGPUDevice())
//	}
func RegisterDevice(d Device) error {
	if d == nil {
		return errors.New("framepipe: device must not be nil")
	}
	if err := d.Init(); err != nil {
		return err
	}
	propagateLogger(d, Logger())
	devMu.Lock()
	old := dev
	dev = d
	devMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// RegisteredDevice returns the currently registered compute device, or nil
// if none.
func RegisteredDevice() Device {
	devMu.RLock()
	d := dev
	devMu.RUnlock()
	return d
}

// SetDeviceProvider passes a device provider to the registered device,
// enabling GPU device sharing. If no device is registered or it doesn't
// support device sharing, this is a no-op.
//
// The provider should implement HalDevice() any and HalQueue() any methods
// that return wgpu/hal types.
func SetDeviceProvider(provider any) error {
	d := RegisteredDevice()
	if d == nil {
		return nil
	}
	if dpa, ok := d.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
