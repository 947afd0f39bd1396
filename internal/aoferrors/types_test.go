package aoferrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_UnclassifiedDefaultsToFatalIO(t *testing.T) {
	assert.Equal(t, KindFatalIO, KindOf(errors.New("plain error")))
}

func TestKindOf_UnwrapsTaggedError(t *testing.T) {
	err := New(KindLeaseConflict, "Store.LeaseAcquire", "held by another agent", ErrLeaseConflict)
	assert.Equal(t, KindLeaseConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrLeaseConflict)
}

func TestIsTransient_OnlyTransientIO(t *testing.T) {
	assert.True(t, IsTransient(New(KindTransientIO, "op", "rename raced", nil)))
	assert.False(t, IsTransient(New(KindFatalIO, "op", "unlink failed", nil)))
}

func TestIsRetryableByCaller(t *testing.T) {
	assert.True(t, IsRetryableByCaller(New(KindLeaseConflict, "op", "", nil)))
	assert.True(t, IsRetryableByCaller(New(KindAdapterError, "op", "", nil)))
	assert.False(t, IsRetryableByCaller(New(KindCycleDetected, "op", "", nil)))
	assert.False(t, IsRetryableByCaller(errors.New("untagged")))
}

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New(KindFatalIO, "Store.Transition", "rename failed", cause)
	assert.Contains(t, err.Error(), "Store.Transition")
	assert.Contains(t, err.Error(), "rename failed")
	assert.Contains(t, err.Error(), "disk full")
}

func TestKind_StringUnknown(t *testing.T) {
	assert.Equal(t, "unknown", Kind(999).String())
}
