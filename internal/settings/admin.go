package settings

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts tailsql over the settings database and a summary
// of the effective settings on the tsweb debug mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+s.path, s.DB, &tailsql.DBOptions{
		Label: "Kiosk settings",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.KVFunc("Settings", func() any {
		all, err := s.All()
		if err != nil {
			return "error: " + err.Error()
		}
		parts := make([]string, 0, len(all))
		for _, k := range Keys() {
			parts = append(parts, k+"="+string(all[k]))
		}
		return strings.Join(parts, " ")
	})
	return nil
}
