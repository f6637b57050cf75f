package httputil

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// LocalOrigins are the browser origin host patterns, in path.Match syntax,
// allowed to drive the kiosk besides the serving host itself. Brackets are
// escaped so they match literally.
var LocalOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", `\[::1\]`, `\[::1\]:*`}

var (
	// ErrForeignOrigin is returned by CheckOrigin for cross-site requests.
	ErrForeignOrigin = errors.New("cross-origin request rejected")
	// ErrNotJSON is returned by CheckJSON when the body is not declared as JSON.
	ErrNotJSON = errors.New("content type must be application/json")
)

// CheckOrigin accepts a request whose Origin is the serving host or one of
// LocalOrigins. Requests without an Origin come from non-browser clients and
// are accepted unless the browser marked them cross-site.
func CheckOrigin(r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			return fmt.Errorf("%w: cross-site fetch", ErrForeignOrigin)
		}
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrForeignOrigin, origin)
	}
	host := strings.ToLower(u.Host)
	if host == strings.ToLower(r.Host) {
		return nil
	}
	for _, pattern := range LocalOrigins {
		if ok, _ := path.Match(pattern, host); ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrForeignOrigin, origin)
}

// CheckJSON requires a Content-Type of application/json. Browsers cannot send
// that cross-origin without a CORS preflight, which the kiosk never answers.
func CheckJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrNotJSON
	}
	return nil
}

// GuardLocal writes 403 and returns false when r fails CheckOrigin. With
// jsonBody set it also writes 415 and returns false when r fails CheckJSON.
func GuardLocal(w http.ResponseWriter, r *http.Request, jsonBody bool) bool {
	if err := CheckOrigin(r); err != nil {
		WriteJSONError(w, http.StatusForbidden, err.Error())
		return false
	}
	if jsonBody {
		if err := CheckJSON(r); err != nil {
			WriteJSONError(w, http.StatusUnsupportedMediaType, err.Error())
			return false
		}
	}
	return true
}
