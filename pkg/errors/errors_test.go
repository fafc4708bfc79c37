package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOf(t *testing.T) {
	cause := stderrors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"fetch error", NewFetchError(ErrorTypeNotFound, 404, "missing", nil), ErrorTypeNotFound},
		{"wrapped timeout", fmt.Errorf("item E1: %w", NewTimeoutError("http://x/a.pdf", cause)), ErrorTypeTimeout},
		{"storage", &StorageError{Op: "write", Key: "E1.pdf", Err: cause}, ErrorTypeStorage},
		{"unavailable", &StorageUnavailableError{Location: "/tmp/x", Err: cause}, ErrorTypeStorage},
		{"persistence", &PersistenceError{Path: "ledger.json", Err: cause}, ErrorTypePersistence},
		{"plain", cause, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeOf(tt.err))
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")

	err := fmt.Errorf("run: %w", &PersistenceError{Path: "ledger.json", DocumentID: "E1", Completed: 3, Err: cause})
	assert.ErrorIs(t, err, cause)

	var persistErr *PersistenceError
	assert.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "E1", persistErr.DocumentID)
	assert.Equal(t, 3, persistErr.Completed)
	assert.Contains(t, err.Error(), `"E1"`)

	partial := &PartialListingError{PagesProcessed: 2, FailedPage: 3, Err: cause}
	assert.ErrorIs(t, partial, cause)
	assert.Contains(t, partial.Error(), "page 3 after 2 pages")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeTimeout))
	assert.True(t, IsRetryable(ErrorTypeServerError))
	assert.False(t, IsRetryable(ErrorTypeAuth))
	assert.False(t, IsRetryable(ErrorTypeInvalidContent))
	assert.False(t, IsRetryable(ErrorTypePersistence))
}

func TestTypeForStatus(t *testing.T) {
	assert.Equal(t, ErrorTypeAuth, TypeForStatus(401))
	assert.Equal(t, ErrorTypeAuth, TypeForStatus(403))
	assert.Equal(t, ErrorTypeNotFound, TypeForStatus(404))
	assert.Equal(t, ErrorTypeRateLimit, TypeForStatus(429))
	assert.Equal(t, ErrorTypeServerError, TypeForStatus(503))
	assert.Equal(t, ErrorTypeUnknown, TypeForStatus(418))
}

func TestErrorMessage(t *testing.T) {
	err := NewFetchError(ErrorTypeServerError, 502, "bad gateway", nil)
	assert.Equal(t, "server_error error (code 502): bad gateway", err.Error())

	timeout := NewTimeoutError("http://x/a.pdf", nil)
	assert.True(t, IsTimeout(timeout))
	assert.Equal(t, "timeout error: fetch of http://x/a.pdf timed out", timeout.Error())
}
