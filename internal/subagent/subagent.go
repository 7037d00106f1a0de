// Package subagent is the consumer-facing facade: start, resume, and
// continue engine sessions, consume simplified events, and collect
// final answers.
//
// subagent.go - Agent and engine dispatch
//
// One Agent serves one engine. It owns no state besides its wiring
// (config, session index, lock registry); sessions carry the
// per-run state.

package subagent

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/engine/claude"
	"github.com/HyphaGroup/warden/internal/engine/codex"
	"github.com/HyphaGroup/warden/internal/engine/kimi"
	"github.com/HyphaGroup/warden/internal/engine/opencode"
	"github.com/HyphaGroup/warden/internal/engine/pi"
	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/sessionindex"
	"github.com/HyphaGroup/warden/internal/sessionlock"
)

var (
	// ErrUnknownEngine is returned for engine names without an adapter.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrNoResumeToken is returned by Continue when the session never
	// surfaced a token.
	ErrNoResumeToken = errors.New("no resume token")
)

// adapterBuilders maps engine names to their adapter constructors.
var adapterBuilders = map[string]func(engine.Request) (engine.Adapter, error){
	codex.EngineName:    func(req engine.Request) (engine.Adapter, error) { return codex.New(req) },
	claude.EngineName:   func(req engine.Request) (engine.Adapter, error) { return claude.New(req) },
	kimi.EngineName:     func(req engine.Request) (engine.Adapter, error) { return kimi.New(req) },
	opencode.EngineName: func(req engine.Request) (engine.Adapter, error) { return opencode.New(req) },
	pi.EngineName:       func(req engine.Request) (engine.Adapter, error) { return pi.New(req) },
}

// Engines returns the supported engine names, sorted.
func Engines() []string {
	names := make([]string, 0, len(adapterBuilders))
	for name := range adapterBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the engines whose executables resolve on PATH.
func Detect() []string {
	var available []string
	for _, name := range Engines() {
		if _, err := exec.LookPath(name); err == nil {
			available = append(available, name)
		}
	}
	return available
}

// AgentOptions wires an Agent. Zero values select defaults: loaded
// config, no index, the process-wide lock registry.
type AgentOptions struct {
	Config   *config.Config
	Index    *sessionindex.Index
	Registry *sessionlock.Registry
}

// Agent is the per-engine facade entry point.
type Agent struct {
	engine   string
	cfg      *config.Config
	index    *sessionindex.Index
	registry *sessionlock.Registry
}

// New creates a facade for the named engine.
func New(engineName string, opts AgentOptions) (*Agent, error) {
	if _, ok := adapterBuilders[engineName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, engineName)
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return &Agent{
		engine:   engineName,
		cfg:      cfg,
		index:    opts.Index,
		registry: opts.Registry,
	}, nil
}

// Engine returns the engine this agent wraps.
func (a *Agent) Engine() string { return a.engine }

func (a *Agent) newAdapter(prompt string, resume *event.ResumeToken, dir string) (engine.Adapter, error) {
	build := adapterBuilders[a.engine]
	return build(engine.Request{
		Prompt: prompt,
		Resume: resume,
		Dir:    dir,
		Config: a.cfg.EngineBlock(a.engine),
	})
}
