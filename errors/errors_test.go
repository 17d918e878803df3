package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "cmp", "Method", "action"))
	assert.NoError(t, WrapTransient(nil, "cmp", "Method", "action"))
	assert.NoError(t, WrapInvalid(nil, "cmp", "Method", "action"))
	assert.NoError(t, WrapFatal(nil, "cmp", "Method", "action"))
}

func TestWrapFormat(t *testing.T) {
	err := Wrap(ErrChannelClosed, "Chan", "Put", "write")
	require.Error(t, err)
	assert.Equal(t, "Chan.Put: write failed: channel closed", err.Error())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestClassification(t *testing.T) {
	transient := WrapTransient(fmt.Errorf("boom"), "cmp", "Op", "act")
	invalid := WrapInvalid(fmt.Errorf("boom"), "cmp", "Op", "act")
	fatal := WrapFatal(fmt.Errorf("boom"), "cmp", "Op", "act")

	assert.True(t, IsTransient(transient))
	assert.True(t, IsInvalid(invalid))
	assert.True(t, IsFatal(fatal))

	assert.Equal(t, ErrorTransient, Classify(transient))
	assert.Equal(t, ErrorInvalid, Classify(invalid))
	assert.Equal(t, ErrorFatal, Classify(fatal))
}

func TestSentinelClassification(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(context.Canceled))
	assert.True(t, IsInvalid(ErrUnknownBuffer))
	assert.True(t, IsFatal(ErrInvalidConfig))
}

func TestClassifyUnknownDefaultsTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("some odd failure")))
}

func TestUnwrap(t *testing.T) {
	err := WrapInvalid(ErrUnknownBuffer, "Chan", "New", "spec validation")
	assert.ErrorIs(t, err, ErrUnknownBuffer)
}
