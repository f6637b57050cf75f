package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name      string
		origin    string
		fetchSite string
		wantErr   bool
	}{
		{"no origin", "", "", false},
		{"same host", "http://kiosk.local:8080", "", false},
		{"same host different case", "http://KIOSK.local:8080", "", false},
		{"localhost", "http://localhost", "", false},
		{"loopback with port", "http://127.0.0.1:5173", "", false},
		{"ipv6 loopback", "http://[::1]:8080", "", false},
		{"foreign", "http://evil.example", "", true},
		{"loopback lookalike", "http://127.0.0.1.evil.example", "", true},
		{"null", "null", "", true},
		{"cross-site without origin", "", "cross-site", true},
		{"same-origin fetch", "", "same-origin", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://kiosk.local:8080/api/serial/send", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.fetchSite != "" {
				req.Header.Set("Sec-Fetch-Site", tt.fetchSite)
			}
			err := CheckOrigin(req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrForeignOrigin)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckJSON(t *testing.T) {
	for contentType, ok := range map[string]bool{
		"application/json":                  true,
		"application/json; charset=utf-8":   true,
		"text/plain":                        false,
		"application/x-www-form-urlencoded": false,
		"multipart/form-data; boundary=x":   false,
		"":                                  false,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if ok {
			assert.NoError(t, CheckJSON(req), contentType)
		} else {
			assert.ErrorIs(t, CheckJSON(req), ErrNotJSON, contentType)
		}
	}
}

func TestGuardLocal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	assert.False(t, GuardLocal(rec, req, true))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	assert.False(t, GuardLocal(rec, req, true))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = httptest.NewRecorder()
	assert.True(t, GuardLocal(rec, req, false), "no body, content type not checked")
	assert.Equal(t, http.StatusOK, rec.Code)
}
