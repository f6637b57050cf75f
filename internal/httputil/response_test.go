package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "test error", resp["error"])
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, json.RawMessage(`{"baudRate":9600}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"baudRate":9600}`, rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	MethodNotAllowed(rec)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
}

func TestReadBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("12345"))
	body, err := ReadBody(req, 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(body))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("123456"))
	_, err = ReadBody(req, 5)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()

	type payload struct {
		Data string `json:"data"`
	}
	var p payload
	require.NoError(t, DecodeStrict([]byte(`{"data":"T"}`), &p))
	assert.Equal(t, "T", p.Data)

	for _, bad := range []string{`{"data":"T","extra":1}`, `{"data":"T"} {}`, `{"data":`, ``} {
		assert.ErrorIs(t, DecodeStrict([]byte(bad), &p), ErrMalformed, "input %q", bad)
	}
}
