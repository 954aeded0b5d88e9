package framepipe

import "errors"

// Error kinds reported by the framework. Callers classify failures with
// errors.Is; all errors returned by handlers and pools wrap exactly one of
// these sentinels.
var (
	// ErrInvalidParam indicates a malformed invocation, such as a missing
	// input buffer. This is a programming error and is never retried.
	ErrInvalidParam = errors.New("framepipe: invalid parameters")

	// ErrPoolExhausted is returned when a buffer pool has no free buffer.
	// The condition is transient backpressure; callers may retry or wait.
	ErrPoolExhausted = errors.New("framepipe: buffer pool exhausted")

	// ErrAllocation is returned when a pool cannot satisfy an up-front
	// buffer reservation. Hardware reservation is all-or-nothing, so this
	// is fatal for the handler instance that owns the pool.
	ErrAllocation = errors.New("framepipe: buffer allocation failed")

	// ErrConfigure is returned when a stage cannot derive or validate its
	// resource requirements from the first request.
	ErrConfigure = errors.New("framepipe: resource configuration failed")

	// ErrDeviceExecution is returned when the compute step itself fails.
	// The framework performs no retry; retry policy belongs to the caller.
	ErrDeviceExecution = errors.New("framepipe: device execution failed")

	// ErrTerminated is returned when execution is attempted on a handler
	// after Terminate.
	ErrTerminated = errors.New("framepipe: handler terminated")

	// ErrPoolClosed is returned when operating on a closed buffer pool.
	ErrPoolClosed = errors.New("framepipe: buffer pool closed")

	// ErrPoolReserved is returned when reserving a pool that already holds
	// a reservation. The buffer descriptor is immutable for the pool's
	// lifetime.
	ErrPoolReserved = errors.New("framepipe: buffer pool already reserved")
)
