// Package mcp exposes the subagent facade as MCP tools.
//
// server.go - MCP server over streamable HTTP
//
// This file contains:
// - Server wiring: per-engine facades, active session table
// - HTTP serving with /healthz and /metrics endpoints
// - The stale-lock cron sweep

package mcp

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/logger"
	"github.com/HyphaGroup/warden/internal/metrics"
	"github.com/HyphaGroup/warden/internal/sessionindex"
	"github.com/HyphaGroup/warden/internal/sessionlock"
	"github.com/HyphaGroup/warden/internal/subagent"
)

// activeSession pairs a facade session with its polling buffer.
type activeSession struct {
	id      string
	engine  string
	session *subagent.Session
	buffer  *EventBuffer
	cancel  context.CancelFunc

	mu       sync.Mutex
	finished bool
}

// Server exposes subagent tools over MCP.
type Server struct {
	cfg      *config.Config
	index    *sessionindex.Index
	registry *sessionlock.Registry

	mu       sync.Mutex
	agents   map[string]*subagent.Agent
	sessions map[string]*activeSession

	cron *cron.Cron
}

// NewServer creates a server. index may be nil; registry nil selects
// the process-wide default.
func NewServer(cfg *config.Config, index *sessionindex.Index, registry *sessionlock.Registry) *Server {
	if registry == nil {
		registry = sessionlock.Default
	}
	return &Server{
		cfg:      cfg,
		index:    index,
		registry: registry,
		agents:   make(map[string]*subagent.Agent),
		sessions: make(map[string]*activeSession),
	}
}

// agent returns (creating on first use) the facade for an engine.
func (s *Server) agent(engineName string) (*subagent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[engineName]; ok {
		return a, nil
	}
	a, err := subagent.New(engineName, subagent.AgentOptions{
		Config:   s.cfg,
		Index:    s.index,
		Registry: s.registry,
	})
	if err != nil {
		return nil, err
	}
	s.agents[engineName] = a
	return a, nil
}

// trackSession registers a started session and begins pumping its
// events into the polling buffer.
func (s *Server) trackSession(engineName string, session *subagent.Session) *activeSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := "sess_" + uuid.NewString()[:8]
	active := &activeSession{
		id:      id,
		engine:  engineName,
		session: session,
		buffer:  NewEventBuffer(id, DefaultEventBufferSize),
		cancel:  cancel,
	}

	s.mu.Lock()
	s.sessions[active.id] = active
	s.mu.Unlock()

	go func() {
		for ev := range session.Events(ctx) {
			active.buffer.Append(ev)
		}
		active.mu.Lock()
		active.finished = true
		active.mu.Unlock()
	}()
	return active
}

func (s *Server) lookupSession(id string) (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	return active, nil
}

// Serve starts the MCP HTTP server on addr and blocks.
func (s *Server) Serve(addr string) error {
	mcpServer := mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "warden",
		Version: "0.1.0",
	}, nil)
	s.registerTools(mcpServer)

	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	s.startLockSweep()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/mcp/", mcpHandler)

	logger.Printf("warden MCP server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// Close stops the sweeper and cancels every tracked session.
func (s *Server) Close() {
	if s.cron != nil {
		s.cron.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, active := range s.sessions {
		active.session.Cancel("server shutdown")
		active.cancel()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessionCount())
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// startLockSweep reclaims stale session locks every minute, logging
// each reclaimed entry with how long it was held.
func (s *Server) startLockSweep() {
	s.cron = cron.New()
	_, err := s.cron.AddFunc("* * * * *", func() {
		for _, info := range s.registry.ReclaimStale() {
			metrics.LocksReclaimed.Inc()
			metrics.LocksHeld.Dec()
			logger.Printf("reclaimed stale lock %s:%s owner=%s held=%s",
				info.Engine, info.Value, info.OwnerID, time.Since(info.AcquiredAt).Round(time.Second))
		}
	})
	if err == nil {
		s.cron.Start()
	}
}
