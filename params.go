package framepipe

import "sync/atomic"

// Parameters bundles one handler invocation: an input buffer, an output
// buffer and the attached per-frame metadata. Both buffers are borrowed
// for the duration of the invocation, never owned.
//
// In must be set before the request is dispatched. Out may be left nil;
// a handler that owns an output pool fills it in. One Parameters serves
// exactly one invocation and is discarded after the callback fires.
type Parameters struct {
	// In is the input buffer. Required.
	In *Buffer

	// Out is the output buffer. Optional; filled by the handler when it
	// owns an output pool.
	Out *Buffer

	metas []Meta

	// statusDone guards the exactly-once completion report.
	statusDone atomic.Bool
}

// NewParameters creates a Parameters for one invocation. Either buffer may
// be nil at construction time.
func NewParameters(in, out *Buffer) *Parameters {
	return &Parameters{In: in, Out: out}
}

// AddMeta appends one metadata record to the ordered set. Nil records are
// rejected and leave the set unchanged.
//
// Kind uniqueness is not enforced: attaching two records of the same
// concrete type keeps both, and FindMeta returns the first. Callers are
// expected to attach at most one record per kind per frame.
func (p *Parameters) AddMeta(m Meta) bool {
	if m == nil {
		return false
	}
	p.metas = append(p.metas, m)
	return true
}

// MetaCount returns the number of attached metadata records.
func (p *Parameters) MetaCount() int {
	return len(p.metas)
}

// markStatusDelivered flips the completion flag. It returns true exactly
// once per Parameters, making the exactly-once callback guarantee
// observable.
func (p *Parameters) markStatusDelivered() bool {
	return p.statusDone.CompareAndSwap(false, true)
}
