//go:build !nogpu

package gpu

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// fenceTimeout bounds how long one submitted command buffer may take.
const fenceTimeout = 5 * time.Second

// WGPUDevice implements framepipe.Device using wgpu/hal compute shaders.
//
// Frame planes travel through storage buffers: upload via the queue, one
// compute pass per plane for remapping, a staging readback for results.
// Every public operation submits its own command buffer and waits on a
// fence, so calls are synchronous from the caller's point of view; the
// framepipe handler provides the pipelining above this layer.
type WGPUDevice struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	ready          bool
	externalDevice bool // true when using a shared device (don't destroy on Close)
}

var _ framepipe.Device = (*WGPUDevice)(nil)

// NewDevice creates an uninitialized wgpu device. framepipe.RegisterDevice
// calls Init.
func NewDevice() *WGPUDevice {
	return &WGPUDevice{}
}

// Name implements framepipe.Device.
func (d *WGPUDevice) Name() string { return "wgpu" }

// SetLogger routes this package's logging through the given logger.
// Called by framepipe when its logger changes.
func (d *WGPUDevice) SetLogger(l *slog.Logger) { setLogger(l) }

// CanProcess implements framepipe.Device. Both copy and remap run as
// compute work once the device is up.
func (d *WGPUDevice) CanProcess(op framepipe.DeviceOp) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready && op&(framepipe.OpCopy|framepipe.OpRemap) != 0
}

// Init implements framepipe.Device. A failure (no Vulkan, no adapters)
// keeps the device unregistered; the pipeline then runs host-only.
func (d *WGPUDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initGPU()
}

func (d *WGPUDevice) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	if err := d.createPipeline(); err != nil {
		d.device.Destroy()
		d.device = nil
		d.queue = nil
		instance.Destroy()
		d.instance = nil
		return fmt.Errorf("create pipeline: %w", err)
	}
	d.ready = true
	slogger().Info("wgpu device initialized", "adapter", selected.Info.Name)
	return nil
}

// Close implements framepipe.Device.
func (d *WGPUDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPipeline()
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.ready = false
	d.externalDevice = false
}

// SetDeviceProvider implements framepipe.DeviceProviderAware. It switches
// this device to a shared hal device from an external provider (e.g., a
// gogpu window). The provider must implement HalDevice() any and
// HalQueue() any returning hal types.
func (d *WGPUDevice) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyPipeline()
	if !d.externalDevice && d.device != nil {
		d.device.Destroy()
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}

	d.device = device
	d.queue = queue
	d.externalDevice = true

	if err := d.createPipeline(); err != nil {
		d.ready = false
		return fmt.Errorf("wgpu: create pipeline with shared device: %w", err)
	}
	d.ready = true
	slogger().Info("wgpu device switched to shared GPU device")
	return nil
}

func (d *WGPUDevice) createPipeline() error {
	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "frame_remap",
		Source: hal.ShaderSource{WGSL: remapShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile remap shader: %w", err)
	}
	d.shader = shader

	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "frame_remap_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	d.bindLayout = bindLayout

	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "frame_remap_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{d.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	d.pipeLayout = pipeLayout

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "frame_remap_pipeline", Layout: d.pipeLayout,
		Compute: hal.ComputeState{Module: d.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	d.pipeline = pipeline
	return nil
}

func (d *WGPUDevice) destroyPipeline() {
	if d.device == nil {
		return
	}
	if d.pipeline != nil {
		d.device.DestroyComputePipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.bindLayout != nil {
		d.device.DestroyBindGroupLayout(d.bindLayout)
		d.bindLayout = nil
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
		d.shader = nil
	}
}

// Copy implements framepipe.Device. The frame rides through device memory
// as a single upload, buffer-to-buffer copy and staging readback.
func (d *WGPUDevice) Copy(dst, src *framepipe.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return framepipe.ErrFallbackToHost
	}
	srcData, dstData := src.Data(), dst.Data()
	if len(srcData) != len(dstData) || len(srcData) == 0 {
		return framepipe.ErrFallbackToHost
	}
	size := alignWords(len(srcData))

	upload, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "frame_copy_src", Size: size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create upload buffer: %w", err)
	}
	defer d.device.DestroyBuffer(upload)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "frame_copy_staging", Size: size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	d.queue.WriteBuffer(upload, 0, padToWords(srcData))

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame_copy_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame_copy"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(upload, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	readback := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	copy(dstData, readback[:len(dstData)])
	return nil
}

// Remap implements framepipe.Device. Each plane runs one compute pass
// through the projective matrix m; chroma planes are remapped in their own
// (half-resolution) pixel coordinates.
func (d *WGPUDevice) Remap(dst, src *framepipe.Buffer, m framepipe.Matrix3) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return framepipe.ErrFallbackToHost
	}
	srcInfo, dstInfo := src.Info(), dst.Info()
	if srcInfo.Format != dstInfo.Format || srcInfo.Components != dstInfo.Components {
		return framepipe.ErrFallbackToHost
	}

	for i := uint32(0); i < srcInfo.Components; i++ {
		srcPlane, err := src.Plane(i)
		if err != nil {
			return err
		}
		dstPlane, err := dst.Plane(i)
		if err != nil {
			return err
		}
		sp, err := srcInfo.PlanarInfo(i)
		if err != nil {
			return err
		}
		dp, err := dstInfo.PlanarInfo(i)
		if err != nil {
			return err
		}
		params := remapParams{
			srcWidth:   sp.Width,
			srcHeight:  sp.Height,
			srcStride:  srcInfo.Strides[i],
			dstWidth:   dp.Width,
			dstStride:  dstInfo.Strides[i],
			pixelBytes: dp.PixelBytes,
			dstSize:    uint32(len(dstPlane)),
		}
		if err := d.remapPlane(srcPlane, dstPlane, params, m); err != nil {
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return nil
}

func (d *WGPUDevice) remapPlane(srcPlane, dstPlane []byte, params remapParams, m framepipe.Matrix3) error {
	srcSize := alignWords(len(srcPlane))
	dstSize := alignWords(len(dstPlane))

	uniformBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_params", Size: remapParamsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}
	defer d.device.DestroyBuffer(uniformBuf)

	srcBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_src", Size: srcSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create source buffer: %w", err)
	}
	defer d.device.DestroyBuffer(srcBuf)

	dstBuf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_dst", Size: dstSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create destination buffer: %w", err)
	}
	defer d.device.DestroyBuffer(dstBuf)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "remap_staging", Size: dstSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	d.queue.WriteBuffer(uniformBuf, 0, packRemapParams(params, m))
	d.queue.WriteBuffer(srcBuf, 0, padToWords(srcPlane))

	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "remap_bind", Layout: d.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: remapParamsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: srcBuf.NativeHandle(), Offset: 0, Size: srcSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: dstBuf.NativeHandle(), Offset: 0, Size: dstSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bindGroup)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "remap_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("remap"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	words := uint32(dstSize / 4)
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "remap_pass"})
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((words+63)/64, 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(dstBuf, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: dstSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	if err := d.submitAndWait(cmdBuf); err != nil {
		return err
	}

	readback := make([]byte, dstSize)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	copy(dstPlane, readback[:len(dstPlane)])
	return nil
}

// submitAndWait submits one command buffer and blocks on its fence.
func (d *WGPUDevice) submitAndWait(cmdBuf hal.CommandBuffer) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}
