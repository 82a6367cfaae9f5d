package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	err := &Error{Type: ErrorTypeStorage, Message: "disk full", Code: 0}
	assert.Equal(t, "storage error: disk full", err.Error())

	err = &Error{Type: ErrorTypeServerError, Message: "bad gateway", Code: 502}
	assert.Equal(t, "server_error error (code 502): bad gateway", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(ErrorTypeNetwork, "fetch failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")

	var typed *Error
	assert.True(t, stderrors.As(fmt.Errorf("outer: %w", err), &typed))
	assert.Equal(t, ErrorTypeNetwork, typed.Type)
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeAmbiguousStudent, `multiple students match "Ann"`)
	assert.True(t, IsType(err, ErrorTypeAmbiguousStudent))
	assert.False(t, IsType(err, ErrorTypeStudentNotFound))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeAmbiguousStudent))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeAuthRequired, TypeOf(New(ErrorTypeAuthRequired, "no session")))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeServerError, ErrorTypeDownload}
	for _, et := range retryable {
		assert.True(t, IsRetryable(et), "expected %s to be retryable", et)
	}

	fatal := []ErrorType{
		ErrorTypeAuthRequired, ErrorTypeAuthFailed, ErrorTypeAmbiguousStudent,
		ErrorTypeStudentNotFound, ErrorTypeStorage, ErrorTypeTagging, ErrorTypeParsing,
	}
	for _, et := range fatal {
		assert.False(t, IsRetryable(et), "expected %s not to be retryable", et)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{599, true},
		{401, false},
		{403, false},
		{404, false},
		{200, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, IsRetryableStatusCode(tt.code), "status %d", tt.code)
	}
}
