package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorCode(rec, http.StatusTooManyRequests, "LIMIT_EXCEEDED", "turn limit reached")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"turn limit reached","code":"LIMIT_EXCEEDED"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Label string `json:"label"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"label":"kid"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "kid", dst.Label)

	for _, body := range []string{``, `{"nope":1}`, `{"label":"a"}{"label":"b"}`, `[`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		assert.Error(t, DecodeJSON(req, &dst), body)
	}
}
