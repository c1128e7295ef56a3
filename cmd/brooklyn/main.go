// Package main wires the Brooklyn browser core together and serves tool
// calls as newline-delimited JSON on stdin/stdout. The transport is
// deliberately minimal; the interesting surface is the protocol router.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/browser"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/config"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/install"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/metrics"
	"github.com/fulmenhq/brooklyn-mcp-sub002/pkg/protocol"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.brooklyn/config.yaml)")
	preinstall := flag.Bool("preinstall", false, "install all engines before serving")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Brooklyn v%s\n", version)
		return
	}

	if err := run(*configPath, *preinstall); err != nil {
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, preinstall bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	logger, _ := logging.NewLogger("main")
	defer logger.Close()
	logger.Infof("brooklyn v%s starting (log file: %s)", version, logger.LogPath())

	installDir := cfg.InstallDir
	if installDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		installDir = filepath.Join(homeDir, ".brooklyn", "browsers")
	}

	driver, err := engine.StartPlaywright()
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Stop(); err != nil {
			logger.Errorf("failed to stop driver: %v", err)
		}
	}()

	store, err := install.NewStore(filepath.Join(installDir, "installed.json"))
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	manager := install.NewManager(store, driver, driver, engine.NewPathDetector(), m)
	factory := browser.NewFactory(cfg, driver, manager, m)
	pool := browser.NewPool(cfg.MaxInstances, m)
	router := protocol.NewRouter(pool, factory, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if preinstall {
		factory.PreinstallBrowsers(ctx, engine.Kinds(), func(p install.Progress) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", p.Kind, p.Phase)
		})
	}

	// Reap idle and unhealthy instances in the background
	idleTimeout := time.Duration(cfg.IdleTimeoutSec) * time.Second
	go func() {
		ticker := time.NewTicker(idleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pool.ReapIdle(idleTimeout)
			}
		}
	}()

	defer pool.CloseAll()
	return serve(ctx, router)
}

// serve reads one JSON request per line and writes one JSON response per
// line. Malformed lines get an error envelope rather than killing the
// process.
func serve(ctx context.Context, router *protocol.Router) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := protocol.Response{
				Success: false,
				Error: &protocol.ErrorInfo{
					Code:    protocol.CodeBrowserError,
					Message: fmt.Sprintf("malformed request: %v", err),
				},
			}
			if err := encoder.Encode(resp); err != nil {
				return err
			}
			continue
		}

		if err := encoder.Encode(router.Route(ctx, req)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
