package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("run aborted: %w", &FetchError{GroupID: "42", Cause: io.ErrUnexpectedEOF})

	assert.True(t, IsFetchError(err))
	assert.True(t, stderrors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, IsParseError(err))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&FetchError{GroupID: "1", Cursor: "c", Status: 502}).Error(), "status 502")
	assert.Contains(t, (&AssetError{Locator: "http://x/a.png", Stage: StageStream, Status: 404}).Error(), "stream failed with status 404")
	assert.Contains(t, (&ParseError{Field: "create_time", Value: "bad", Cause: io.EOF}).Error(), `"bad"`)
	assert.Contains(t, (&EmptyPageError{GroupID: "1", Attempts: 3}).Error(), "3 empty pages")
}

func TestTypeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{429, ErrorTypeRateLimit},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForStatus(tt.status))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(504))
	assert.False(t, IsRetryableStatusCode(403))
	assert.False(t, IsRetryableStatusCode(400))
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.False(t, IsRetryable(ErrorTypeParsing))
}
