package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSweepRequest(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		req, err := decodeSweepRequest(httptest.NewRequest(http.MethodPost, "/", nil))
		require.NoError(t, err)
		assert.Empty(t, req.Bucket)
		assert.Zero(t, req.Limit)
	})

	t.Run("bucket and limit", func(t *testing.T) {
		body := strings.NewReader(`{"bucket":"exports","limit":5}`)
		req, err := decodeSweepRequest(httptest.NewRequest(http.MethodPost, "/", body))
		require.NoError(t, err)
		assert.Equal(t, "exports", req.Bucket)
		assert.Equal(t, 5, req.Limit)
	})

	for name, body := range map[string]string{
		"not json":       `limit=5`,
		"unknown field":  `{"bukcet":"exports"}`,
		"negative limit": `{"limit":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeSweepRequest(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			assert.Error(t, err)
		})
	}
}

func TestHandleSweep_RejectsGet(t *testing.T) {
	rec := httptest.NewRecorder()

	handleSweep(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}
