// Package stab provides a video stabilization stage for framepipe.
//
// A Stabilizer consumes frames carrying a device-pose metadata record and
// resamples each frame through a projective transform derived from the
// pose. The transform itself is pluggable via a MotionModel; without one
// the stage degrades to a frame copy, which is useful for exercising the
// full pipeline (pools, dispatch, device offload) before a motion model is
// wired in.
//
// Processing is offloaded to the registered compute device when one is
// available. A device that declines an operation with
// framepipe.ErrFallbackToHost triggers a transparent host-side copy.
package stab

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framepipe"
)

// Axis names one axis of a right-handed coordinate frame, with sign.
type Axis int

const (
	AxisNone Axis = iota
	AxisX
	AxisMinusX
	AxisY
	AxisMinusY
	AxisZ
	AxisMinusZ
)

// CoordConv maps the three axes of a source coordinate frame onto a target
// frame. It describes where each target axis points in the source frame;
// AxisNone leaves an axis unmapped.
type CoordConv struct {
	X, Y, Z Axis
}

// CameraIntrinsics holds the pinhole camera model parameters in pixels.
type CameraIntrinsics struct {
	FocalX  float64
	FocalY  float64
	OffsetX float64
	OffsetY float64
	Skew    float64
}

// MotionFilter parameterizes the temporal smoothing window applied to the
// pose stream.
type MotionFilter struct {
	// Radius is the half-width of the smoothing window in frames.
	Radius int

	// Stdev is the Gaussian standard deviation of the window weights.
	Stdev float64
}

// MotionModel derives the projective transform for one frame from its
// device pose. Returning the identity transform selects the copy path.
type MotionModel func(pose *framepipe.DevicePose) framepipe.Matrix3

// taskQueueDepth bounds how many submitted frames may be pending on the
// worker before StartWork blocks.
const taskQueueDepth = 16

type task struct {
	h    *framepipe.Handler
	p    *framepipe.Parameters
	done chan error
}

// Stabilizer is a framepipe.Stage that warps frames against their device
// pose. Create one with NewStabilizer, configure it, then hand it to a
// framepipe.Handler.
//
// The configuration setters must be called before the first request; after
// that the stage is driven only by its handler.
type Stabilizer struct {
	mu         sync.Mutex
	intrinsics CameraIntrinsics
	worldConv  CoordConv
	cameraConv CoordConv
	filter     MotionFilter
	model      MotionModel

	tasks      chan task
	workerOnce sync.Once
	started    bool
	workerDone chan struct{}
	termOnce   sync.Once

	fallbackOnce sync.Once
}

// NewStabilizer creates a stabilizer with the default motion filter
// (radius 15, stdev 10) and no motion model.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{
		filter:     MotionFilter{Radius: 15, Stdev: 10},
		tasks:      make(chan task, taskQueueDepth),
		workerDone: make(chan struct{}),
	}
}

// SetCameraIntrinsics records the pinhole model of the capturing camera.
func (s *Stabilizer) SetCameraIntrinsics(ci CameraIntrinsics) {
	s.mu.Lock()
	s.intrinsics = ci
	s.mu.Unlock()
}

// CameraIntrinsics returns the recorded camera model.
func (s *Stabilizer) CameraIntrinsics() CameraIntrinsics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intrinsics
}

// AlignCoordinateSystem records the axis mappings from the pose sensor's
// world and body frames into the camera frame.
func (s *Stabilizer) AlignCoordinateSystem(world, camera CoordConv) {
	s.mu.Lock()
	s.worldConv = world
	s.cameraConv = camera
	s.mu.Unlock()
}

// SetMotionFilter overrides the default temporal smoothing parameters.
func (s *Stabilizer) SetMotionFilter(f MotionFilter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// MotionFilterParams returns the active smoothing parameters.
func (s *Stabilizer) MotionFilterParams() MotionFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetMotionModel installs the pose-to-transform model. A nil model (the
// default) makes every frame a plain copy.
func (s *Stabilizer) SetMotionModel(m MotionModel) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

// ConfigureResource implements framepipe.Stage. It validates the first
// frame and derives the handler's output descriptor from the input when
// the caller has not set one: stabilization preserves format and
// dimensions.
func (s *Stabilizer) ConfigureResource(h *framepipe.Handler, p *framepipe.Parameters) error {
	info := p.In.Info()
	if !info.Valid() {
		return fmt.Errorf("input buffer carries no video info")
	}
	outInfo := h.OutVideoInfo()
	if !outInfo.Valid() {
		if err := h.SetOutVideoInfo(info); err != nil {
			return err
		}
	}
	framepipe.Logger().Debug("stabilizer configured",
		"format", info.Format, "width", info.Width, "height", info.Height)
	return nil
}

// StartWork implements framepipe.Stage. Work runs on a single worker
// goroutine started lazily on the first request, so frames complete in
// submission order and device access is serialized.
func (s *Stabilizer) StartWork(h *framepipe.Handler, p *framepipe.Parameters) (<-chan error, error) {
	if p.Out == nil {
		return nil, fmt.Errorf("%w: stabilizer requires an output buffer", framepipe.ErrInvalidParam)
	}
	s.workerOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.worker()
	})

	done := make(chan error, 1)
	s.tasks <- task{h: h, p: p, done: done}
	return done, nil
}

// TerminateStage implements framepipe.StageTerminator. It stops the worker
// and waits for the frame in progress to finish. Idempotent.
func (s *Stabilizer) TerminateStage() error {
	s.termOnce.Do(func() {
		close(s.tasks)
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.workerDone
	}
	return nil
}

func (s *Stabilizer) worker() {
	defer close(s.workerDone)
	for t := range s.tasks {
		t.done <- s.transform(t.p)
	}
}

// transform processes one frame: derive the warp from the pose record,
// route to the compute device, fall back to the host on
// ErrFallbackToHost.
func (s *Stabilizer) transform(p *framepipe.Parameters) error {
	in, out := p.In, p.Out
	if err := checkLayout(in, out); err != nil {
		return err
	}

	m := framepipe.Identity3()
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()
	if model != nil {
		if pose, ok := framepipe.FindMeta[*framepipe.DevicePose](p); ok {
			m = model(pose)
		}
	}

	if err := s.dispatch(out, in, m); err != nil {
		return err
	}
	out.SetTimestamp(in.Timestamp())
	return nil
}

// dispatch routes one frame to the registered device, or to the host when
// no device is registered or the device declines.
func (s *Stabilizer) dispatch(dst, src *framepipe.Buffer, m framepipe.Matrix3) error {
	dev := framepipe.RegisteredDevice()
	if dev != nil {
		var err error
		switch {
		case !m.IsIdentity() && dev.CanProcess(framepipe.OpRemap):
			err = dev.Remap(dst, src, m)
		case dev.CanProcess(framepipe.OpCopy):
			err = dev.Copy(dst, src)
		default:
			err = framepipe.ErrFallbackToHost
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, framepipe.ErrFallbackToHost) {
			return fmt.Errorf("%w: %w", framepipe.ErrDeviceExecution, err)
		}
		s.fallbackOnce.Do(func() {
			framepipe.Logger().Warn("device declined frame, using host path", "device", dev.Name())
		})
	}
	return hostCopy(dst, src)
}

// hostCopy copies every plane of src into dst. Layout equality has already
// been checked.
func hostCopy(dst, src *framepipe.Buffer) error {
	info := src.Info()
	for i := uint32(0); i < info.Components; i++ {
		sp, err := src.Plane(i)
		if err != nil {
			return err
		}
		dp, err := dst.Plane(i)
		if err != nil {
			return err
		}
		copy(dp, sp)
	}
	return nil
}

func checkLayout(in, out *framepipe.Buffer) error {
	a, b := in.Info(), out.Info()
	if a.Format != b.Format || a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("%w: input %s and output %s layouts differ",
			framepipe.ErrInvalidParam, a.String(), b.String())
	}
	return nil
}
