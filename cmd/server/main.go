// Command server runs the warden MCP server: subagent supervision
// tools over streamable HTTP, plus /healthz and /metrics.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/logger"
	"github.com/HyphaGroup/warden/internal/mcp"
	"github.com/HyphaGroup/warden/internal/sessionindex"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Warden home directory (default: ~/.warden)")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("warden %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*dirFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(""); err != nil {
		// Debug log is best-effort; its absence never changes behavior.
		fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
	}
	defer func() { _ = logger.Close() }()

	dataDir := cfg.Server.DataDir
	if cfg.ConfigDir != "" {
		dataDir = filepath.Join(cfg.ConfigDir, dataDir)
	}
	index, err := sessionindex.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open session index: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = index.Close() }()

	addr := cfg.Server.Address
	if *addrFlag != "" {
		addr = *addrFlag
	}

	server := mcp.NewServer(cfg, index, nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		server.Close()
		_ = index.Close()
		_ = logger.Close()
		os.Exit(0)
	}()

	if err := server.Serve(addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
