// Command lightengined exercises the lamp transport and show engine
// from the command line: discover lamps, query status, or run a mode
// against a configured FIFO until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Drewsername/localweb/internal/config"
	"github.com/Drewsername/localweb/internal/engine"
	"github.com/Drewsername/localweb/internal/lamp"
)

const version = "0.1.0"

func main() {
	// Check for CLI subcommands before parsing flags.
	if len(os.Args) > 1 {
		if runCLI(os.Args[1:]) {
			return
		}
	}
	flag.Usage = usage
	flag.Parse()
	usage()
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lightengined <version|discover|status|run> [args]")
}

// runCLI handles subcommand dispatch. Returns true if a subcommand was
// recognized and handled.
func runCLI(args []string) bool {
	switch args[0] {
	case "version":
		fmt.Printf("lightengined %s\n", version)
		return true
	case "discover":
		return cliDiscover()
	case "status":
		return cliStatus(args[1:])
	case "run":
		return cliRun(args[1:])
	default:
		return false
	}
}

func cliDiscover() bool {
	tr := lamp.New(config.Load().CloudAPIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := tr.Discover(ctx, true)
	if err != nil {
		log.Printf("[lamp] discover: %v", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("no lamps found")
		return true
	}
	for _, r := range records {
		fmt.Printf("%s\t%s\t%s\n", r.DeviceID, r.IP, r.SKU)
	}
	return true
}

func cliStatus(args []string) bool {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	ip := fs.String("ip", "", "lamp IP to query directly (skips discovery)")
	fs.Parse(args)

	tr := lamp.New(config.Load().CloudAPIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	target := *ip
	if target == "" {
		records, err := tr.Discover(ctx, false)
		if err != nil || len(records) == 0 {
			fmt.Println("no lamps found")
			return true
		}
		target = records[0].IP
	}

	st, err := tr.GetStatus(ctx, target)
	if err != nil {
		log.Printf("[lamp] status: %v", err)
		os.Exit(1)
	}
	if st == nil {
		fmt.Println("status: no reply within deadline")
		return true
	}
	fmt.Printf("on=%v brightness=%v color=%v kelvin=%v\n", st.OnOff, st.Brightness, st.Color, st.ColorTemInKelvin)
	return true
}

func cliRun(args []string) bool {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mode := fs.String("mode", "pulse", "pulse, ambient, or party")
	devices := fs.String("devices", "", "comma-separated device ids")
	intensity := fs.Int("intensity", 5, "intensity 1-10")
	latencyMs := fs.Int("latency-ms", 0, "latency offset in milliseconds, -500..500")
	fs.Parse(args)

	if *devices == "" {
		fmt.Fprintln(os.Stderr, "run: -devices is required")
		os.Exit(1)
	}

	cfg := config.Load()
	tr := lamp.New(cfg.CloudAPIKey)
	eng := engine.New(tr, cfg.FIFOPath)

	deviceIDs := strings.Split(*devices, ",")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := eng.Start(ctx, *mode, deviceIDs, *latencyMs, *intensity)
	cancel()
	if err != nil {
		log.Printf("[engine] start: %v", err)
		os.Exit(1)
	}
	log.Printf("[engine] running mode=%s devices=%v intensity=%d", *mode, deviceIDs, *intensity)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("[engine] stopping")
	eng.Stop()
	return true
}
