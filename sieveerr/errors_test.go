package sieveerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotValidErrorFormatsLocation(t *testing.T) {
	err := NewNotValidError("myfilter.sieve", 3, 7, "require must precede other commands")
	assert.Contains(t, err.Error(), "myfilter.sieve")
	assert.Contains(t, err.Error(), "line:3, column:7")
	assert.Contains(t, err.Error(), "require must precede other commands")
}

func TestTempFailureErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &TempFailureError{Message: "storing to folder", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestKeepFailedErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := &KeepFailedError{Message: "implicit keep", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestInternalErrorAsTempFailure(t *testing.T) {
	internal := &InternalError{Message: "unreachable opcode"}
	tf := internal.AsTempFailure()
	assert.ErrorIs(t, tf, internal)
	assert.Contains(t, tf.Error(), "internal error")
}

func TestNopUserLogDoesNothing(t *testing.T) {
	var log UserLog = NopUserLog{}
	assert.NotPanics(t, func() {
		log.Warn("W001", "test warning")
		log.Info("I001", "test info")
	})
}
