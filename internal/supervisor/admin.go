package supervisor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/kiosk/internal/httputil"
)

// AttachAdminRoutes attaches serial debugging endpoints to the /debug/ mux.
// These routes are meant for localhost only.
func (s *Supervisor) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Serial connected", func() any { return s.Connected() })

	debug.HandleFunc("serial-status", "serial supervisor state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Status())
	})

	// Writes a line to the device exactly as given, without terminator
	// handling, for poking at hardware from a shell.
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := httputil.CheckOrigin(r); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		command := r.FormValue("command")
		if strings.TrimSpace(command) == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendData(command); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Sent Events stream of everything the supervisor relays.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				// SSE data lines cannot contain raw newlines.
				for _, part := range strings.Split(strings.TrimRight(line, "\r\n"), "\n") {
					if _, err := fmt.Fprintf(w, "data: %s\n", strings.TrimRight(part, "\r")); err != nil {
						return
					}
				}
				if _, err := w.Write([]byte("\n")); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
