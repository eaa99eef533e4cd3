package vfs

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// HeaderPolicy selects whether header lengths are shared across entries
type HeaderPolicy int

const (
	// PolicyUniform assumes every container under the root has the same
	// header length, so the first parsed value serves all later entries.
	PolicyUniform HeaderPolicy = iota
	// PolicyHeterogeneous parses every container header
	PolicyHeterogeneous
)

// String returns the string representation of the policy
func (p HeaderPolicy) String() string {
	switch p {
	case PolicyUniform:
		return "uniform"
	case PolicyHeterogeneous:
		return "heterogeneous"
	default:
		return "unknown"
	}
}

// PolicyFor maps the assume_same_size_headers setting to a policy
func PolicyFor(assumeSameSize bool) HeaderPolicy {
	if assumeSameSize {
		return PolicyUniform
	}
	return PolicyHeterogeneous
}

// HeaderSizeHint is a process-wide header length shared by all entries of
// a mount. It starts unset and is written at most once.
type HeaderSizeHint struct {
	policy HeaderPolicy
	value  atomic.Int64
	warned sync.Once
}

// NewHeaderSizeHint creates an unset hint with the given policy
func NewHeaderSizeHint(policy HeaderPolicy) *HeaderSizeHint {
	return &HeaderSizeHint{policy: policy}
}

// Policy returns the hint's policy. A nil hint behaves as heterogeneous
// without the warning.
func (h *HeaderSizeHint) Policy() HeaderPolicy {
	if h == nil {
		return PolicyHeterogeneous
	}
	return h.policy
}

// Get returns the stored header length. It reports false when unset or
// when the policy is heterogeneous.
func (h *HeaderSizeHint) Get() (int64, bool) {
	if h == nil || h.policy != PolicyUniform {
		return 0, false
	}
	v := h.value.Load()
	return v, v > 0
}

// Offer stores v if no value has been stored yet. It returns true when v
// became the hint.
func (h *HeaderSizeHint) Offer(v int64) bool {
	if h == nil || h.policy != PolicyUniform || v <= 0 {
		return false
	}
	return h.value.CompareAndSwap(0, v)
}

// noteParse is called after every header parse that the hint could not
// short-circuit.
func (h *HeaderSizeHint) noteParse(v int64) {
	if h == nil {
		return
	}
	if h.policy == PolicyHeterogeneous {
		h.warned.Do(func() {
			log.Warn("[VFS] Assuming different size headers might render directory listings slow")
		})
		return
	}
	if h.Offer(v) {
		log.Debugf("[VFS] Header size hint set to %d", v)
	}
}
