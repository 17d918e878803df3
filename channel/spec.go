package channel

import (
	"fmt"

	"github.com/clyfe/systems-toolbox/errors"
)

// Kind identifies the buffering discipline of a channel.
type Kind string

const (
	// KindBuffer is a bounded FIFO buffer that blocks producers when full.
	KindBuffer Kind = "buffer"

	// KindSliding retains only the latest N values, dropping older ones
	// silently; producers never block.
	KindSliding Kind = "sliding"
)

// BufferSpec describes a channel buffer as a tagged pair of kind and size.
type BufferSpec struct {
	Kind Kind `json:"kind"           yaml:"kind"`
	Size int  `json:"size,omitempty" yaml:"size,omitempty"`
}

// Fixed returns a bounded FIFO buffer spec of the given size.
func Fixed(n int) BufferSpec {
	return BufferSpec{Kind: KindBuffer, Size: n}
}

// Sliding returns a latest-only buffer spec of the given size.
func Sliding(n int) BufferSpec {
	return BufferSpec{Kind: KindSliding, Size: n}
}

// IsSliding reports whether the spec describes a sliding buffer.
func (s BufferSpec) IsSliding() bool {
	return s.Kind == KindSliding
}

// Validate checks the spec. An unknown kind is a configuration error and
// must abort component construction.
func (s BufferSpec) Validate() error {
	switch s.Kind {
	case KindBuffer, KindSliding:
	default:
		return errors.WrapInvalid(errors.ErrUnknownBuffer, "BufferSpec", "Validate",
			fmt.Sprintf("kind %q", s.Kind))
	}
	if s.Size < 0 {
		return errors.WrapInvalid(errors.ErrUnknownBuffer, "BufferSpec", "Validate",
			fmt.Sprintf("negative size %d", s.Size))
	}
	return nil
}
