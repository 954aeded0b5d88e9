// Package framepipe provides a frame-processing pipeline framework for
// GPU-accelerated video and image transforms operating on pooled hardware
// buffers.
//
// # Overview
//
// A processing stage borrows an input buffer from a pool, attaches
// auxiliary per-frame metadata (for example a device pose sample from a
// motion sensor), executes synchronously or asynchronously against that
// request, and reports completion through a decoupled callback. The
// framework owns the resource-lifetime and ordering guarantees; the
// concrete transform (warp, blend, scale) is supplied by the stage.
//
// # Quick Start
//
//	import "github.com/gogpu/framepipe"
//
//	h := framepipe.NewHandler("my-stage", stage)
//	h.SetOutVideoInfo(info)
//	h.EnableAllocator(true, 0)
//
//	p := framepipe.NewParameters(inBuf, nil)
//	p.AddMeta(&framepipe.DevicePose{Timestamp: ts})
//	if err := h.Execute(p); err != nil {
//	    // classify with errors.Is against the framepipe error kinds
//	}
//
// # Architecture
//
// The library is organized into:
//   - Public API: Handler, Stage, Parameters, Buffer, BufferPool, Meta
//   - Device registry: optional GPU compute device (gpu/ registers wgpu)
//   - Stages: stab (pose-compensated video stabilization)
//
// # Execution model
//
// Execute blocks until device completion and returns the final status.
// Submit returns once work is submitted; completion is observed when later
// calls reap the device queue or when Finish drains it. Exactly one
// callback fires per request that reached the stage, never zero, never
// two. Failures before dispatch (bad arguments, configuration failure,
// pool exhaustion) are returned synchronously and fire no callback.
//
// # Buffer ownership
//
// Buffers are owned by their pool. A Parameters borrows its buffers for
// one invocation; Release returns a buffer to its pool exactly once, on
// every exit path, and further releases are no-ops.
package framepipe

// Version is the current version of the library.
const Version = "0.1.0"
