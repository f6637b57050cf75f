// Package api is the kiosk's UI-facing HTTP surface: the selector page, the
// bundled apps, the serial bridge and the settings and config endpoints.
package api

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"

	"github.com/banshee-data/kiosk/internal/apps"
	"github.com/banshee-data/kiosk/internal/bridge"
	"github.com/banshee-data/kiosk/internal/config"
	"github.com/banshee-data/kiosk/internal/httputil"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/security"
	"github.com/banshee-data/kiosk/internal/settings"
	"github.com/banshee-data/kiosk/internal/supervisor"
)

//go:embed static/*
var staticFiles embed.FS

const maxBodyBytes = 64 * 1024

// Supervisor is the part of the serial supervisor the API drives.
type Supervisor interface {
	Initialize(sink supervisor.UISink, cfg config.SerialConfig) error
	Connected() bool
	Status() supervisor.Status
}

// SettingsStore is the persisted settings map.
type SettingsStore interface {
	Get(key string) (json.RawMessage, error)
	Set(key string, value json.RawMessage) error
	Reset() error
	All() (map[string]json.RawMessage, error)
}

// Server holds the collaborators behind the HTTP routes.
type Server struct {
	cfg       *config.Config
	sup       Supervisor
	bridge    *bridge.Bridge
	settings  SettingsStore
	apps      *apps.Directory
	staticDir string

	mu      sync.Mutex
	current string
}

// NewServer wires the API. staticDir, when set, replaces the embedded
// selector page.
func NewServer(cfg *config.Config, sup Supervisor, b *bridge.Bridge, st SettingsStore, dir *apps.Directory, staticDir string) *Server {
	return &Server{
		cfg:       cfg,
		sup:       sup,
		bridge:    b,
		settings:  st,
		apps:      dir,
		staticDir: staticDir,
	}
}

// ServeMux returns the UI routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/serial/ws", s.bridge.ServeWS)
	mux.HandleFunc("/api/serial/send", s.bridge.ServeSend)
	mux.HandleFunc("/api/serial/status", s.serialStatus)

	mux.HandleFunc("/api/apps", s.listApps)
	mux.HandleFunc("/api/apps/load", s.loadApp)
	mux.HandleFunc("/api/apps/selector", s.showSelector)
	mux.Handle("/apps/", http.StripPrefix("/apps/", http.HandlerFunc(s.serveApp)))

	mux.HandleFunc("GET /api/settings", s.listSettings)
	mux.HandleFunc("GET /api/settings/{key}", s.getSetting)
	mux.HandleFunc("PUT /api/settings/{key}", s.putSetting)
	mux.HandleFunc("POST /api/settings/reset", s.resetSettings)

	mux.HandleFunc("/api/config", s.showConfig)

	mux.Handle("/", s.staticHandler())
	return mux
}

func (s *Server) staticHandler() http.Handler {
	if s.staticDir != "" {
		return http.FileServer(http.Dir(s.staticDir))
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

func (s *Server) serialStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.cfg)
}

// appView is an app as the selector sees it.
type appView struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func viewOf(info apps.Info) appView {
	return appView{Name: info.Name, URL: "/apps/" + info.Name + "/"}
}

type appsResponse struct {
	Apps    []appView `json:"apps"`
	Current string    `json:"current"`
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	list, err := s.apps.Scan()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list apps: %v", err))
		return
	}
	resp := appsResponse{Apps: make([]appView, 0, len(list)), Current: s.currentApp()}
	for _, info := range list {
		resp.Apps = append(resp.Apps, viewOf(info))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type loadRequest struct {
	Name string `json:"name"`
}

func (s *Server) loadApp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !httputil.GuardLocal(w, r, true) {
		return
	}
	body, err := httputil.ReadBody(r, maxBodyBytes)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	var req loadRequest
	if err := httputil.DecodeStrict(body, &req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	info, err := s.LoadApp(req.Name)
	switch {
	case errors.Is(err, security.ErrInvalidName), errors.Is(err, security.ErrPathTraversal):
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, apps.ErrNotFound):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewOf(info))
}

// LoadApp makes name the current app and brings up the serial subsystem if
// it is not connected yet. A serial start failure does not fail the load:
// it is reported to the UI as a serial error event.
func (s *Server) LoadApp(name string) (apps.Info, error) {
	info, err := s.apps.Resolve(name)
	if err != nil {
		return apps.Info{}, err
	}

	s.mu.Lock()
	s.current = info.Name
	s.mu.Unlock()
	monitoring.Logf("api: loading app %s", info.Name)

	if !s.sup.Connected() {
		if err := s.sup.Initialize(s.bridge, s.cfg.Serial); err != nil {
			monitoring.Logf("api: serial initialization failed: %v", err)
		}
	}
	return info, nil
}

func (s *Server) currentApp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) showSelector(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !httputil.GuardLocal(w, r, false) {
		return
	}
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": "/"})
}

// serveApp serves files of one app. The path has had "/apps/" stripped.
func (s *Server) serveApp(w http.ResponseWriter, r *http.Request) {
	name, rest, found := strings.Cut(r.URL.Path, "/")
	if name == "" {
		http.NotFound(w, r)
		return
	}
	if !found {
		http.Redirect(w, r, "/apps/"+name+"/", http.StatusMovedPermanently)
		return
	}
	info, err := s.apps.Resolve(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + rest
	http.FileServer(http.Dir(info.Path)).ServeHTTP(w, r2)
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.settings.All()
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, all)
}

func (s *Server) getSetting(w http.ResponseWriter, r *http.Request) {
	v, err := s.settings.Get(r.PathValue("key"))
	if errors.Is(err, settings.ErrInvalidKey) {
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) putSetting(w http.ResponseWriter, r *http.Request) {
	if !httputil.GuardLocal(w, r, true) {
		return
	}
	body, err := httputil.ReadBody(r, maxBodyBytes)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	if !json.Valid(body) {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid JSON value")
		return
	}
	key := r.PathValue("key")
	err = s.settings.Set(key, body)
	switch {
	case errors.Is(err, settings.ErrInvalidKey):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, settings.ErrInvalidValue):
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	v, err := s.settings.Get(key)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) resetSettings(w http.ResponseWriter, r *http.Request) {
	if !httputil.GuardLocal(w, r, false) {
		return
	}
	if err := s.settings.Reset(); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
