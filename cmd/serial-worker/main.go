// Command serial-worker owns one serial device on behalf of the kiosk. It
// reads CBOR command frames on stdin and writes event frames on stdout; logs
// go to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/banshee-data/kiosk/internal/monitoring"
	"github.com/banshee-data/kiosk/internal/serialport"
	"github.com/banshee-data/kiosk/internal/version"
	"github.com/banshee-data/kiosk/internal/worker"
)

func main() {
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String("serial-worker"))
		return
	}

	// stdout carries frames, so nothing else may write to it.
	monitoring.UseWriter(os.Stderr, "serial-worker: ")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.New(serialport.RealFactory{}).Run(ctx, os.Stdin, os.Stdout); err != nil {
		monitoring.Logf("exiting: %v", err)
		stop()
		os.Exit(1)
	}
}
