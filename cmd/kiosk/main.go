// Command kiosk serves the selector UI and the bundled apps, and owns the
// serial subsystem they talk to.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/banshee-data/kiosk/internal/api"
	"github.com/banshee-data/kiosk/internal/apps"
	"github.com/banshee-data/kiosk/internal/bridge"
	"github.com/banshee-data/kiosk/internal/config"
	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/serialport"
	"github.com/banshee-data/kiosk/internal/settings"
	"github.com/banshee-data/kiosk/internal/supervisor"
	"github.com/banshee-data/kiosk/internal/version"
)

var (
	configPath  = pflag.String("config", "", "Config file (default configs/config.<APP_ENV>.json)")
	listen      = pflag.String("listen", "127.0.0.1:8080", "Listen address")
	settingsDB  = pflag.String("settings-db", "kiosk-settings.db", "Settings database path")
	appsDir     = pflag.String("apps-dir", "apps", "Directory of bundled apps")
	staticDir   = pflag.String("static-dir", "", "Serve the selector UI from this directory instead of the embedded copy")
	listPorts   = pflag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = pflag.Bool("version", false, "Print version and exit")
)

func main() {
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String("kiosk"))
		return
	}
	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	path := *configPath
	if path == "" {
		path = config.PathForEnv(config.DefaultDir, "")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("loaded %s config from %s", cfg.Environment, path)

	store, err := settings.Open(*settingsDB)
	if err != nil {
		log.Fatalf("Failed to open settings database: %v", err)
	}
	defer store.Close()

	sup := supervisor.New(supervisor.DefaultFactory(), store)
	b := bridge.New(sup)
	dir := apps.NewDirectory(*appsDir)
	server := api.NewServer(cfg, sup, b, store, dir, *staticDir)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := autoStart(server, dir); err != nil {
		log.Printf("auto-start skipped: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()

		// mount the admin debugging routes (loopback only, via tsweb)
		sup.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("settings debug routes unavailable: %v", err)
		}

		httpServer := &http.Server{
			Addr:              *listen,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("listening on %s", *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	// The serial backend must not outlive the shell.
	sup.Disconnect()
	log.Printf("Graceful shutdown complete")
}

// autoStart loads the only app when exactly one is bundled.
func autoStart(server *api.Server, dir *apps.Directory) error {
	list, err := dir.Scan()
	if err != nil {
		return err
	}
	name, ok := soleApp(list)
	if !ok {
		monitoring.Logf("%d apps found, showing selector", len(list))
		return nil
	}
	_, err = server.LoadApp(name)
	return err
}

func soleApp(list []apps.Info) (string, bool) {
	if len(list) != 1 {
		return "", false
	}
	return list[0].Name, true
}

func printPorts(w io.Writer) error {
	ports, err := serialport.ListPorts()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ports)
}
