// Package subagent is the consumer-facing facade.
//
// session.go - session lifecycle and simplified event mapping
//
// Events flattens unified events into a simpler tuple shape and, as a
// side effect of consumption, tracks the latest resume token: after
// draining the events, ResumeToken reflects the last Started or
// Completed token observed.

package subagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HyphaGroup/warden/internal/engine"
	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/runner"
	"github.com/HyphaGroup/warden/internal/stream"
)

// SimpleEventType tags the flattened event tuples.
type SimpleEventType string

const (
	SimpleStarted   SimpleEventType = "started"
	SimpleAction    SimpleEventType = "action"
	SimpleCompleted SimpleEventType = "completed"
	SimpleError     SimpleEventType = "error"
)

// SimpleEvent is the flattened event shape handed to consumers.
type SimpleEvent struct {
	Type SimpleEventType `json:"type"`

	// started
	Token *event.ResumeToken `json:"token,omitempty"`

	// action
	Action *event.Action `json:"action,omitempty"`
	Phase  event.Phase   `json:"phase,omitempty"`

	// completed
	Answer string `json:"answer,omitempty"`

	// error (also covers canceled items)
	Reason string `json:"reason,omitempty"`

	// Opts carries the secondary fields (ok, level, message, usage,
	// resume, error) for action and completed tuples.
	Opts map[string]any `json:"opts,omitempty"`
}

// StartOptions configures one session start.
type StartOptions struct {
	Dir         string
	Env         []string
	Timeout     time.Duration
	CancelGrace time.Duration
	OwnerPID    int
}

// Session is one running (or finished) engine conversation.
type Session struct {
	agent  *Agent
	runner *runner.Runner
	prompt string
	dir    string

	mu    sync.Mutex
	token *event.ResumeToken
}

// Start begins a new session.
func (a *Agent) Start(prompt string, opts StartOptions) (*Session, error) {
	return a.launch(prompt, nil, opts)
}

// Resume reopens the session named by token.
func (a *Agent) Resume(token event.ResumeToken, prompt string, opts StartOptions) (*Session, error) {
	if token.Engine != a.engine {
		return nil, fmt.Errorf("%w: token is for %s", event.ErrEngineMismatch, token.Engine)
	}
	return a.launch(prompt, &token, opts)
}

// Continue starts a follow-up turn on a session's conversation. The
// original working directory is inherited unless opts overrides it.
func (a *Agent) Continue(s *Session, prompt string, opts *StartOptions) (*Session, error) {
	token := s.ResumeToken()
	if token == nil {
		return nil, ErrNoResumeToken
	}
	next := StartOptions{Dir: s.dir}
	if opts != nil {
		next = *opts
		if next.Dir == "" {
			next.Dir = s.dir
		}
	}
	return a.Resume(*token, prompt, next)
}

func (a *Agent) launch(prompt string, resume *event.ResumeToken, opts StartOptions) (*Session, error) {
	adapter, err := a.newAdapter(prompt, resume, opts.Dir)
	if err != nil {
		return nil, err
	}
	r, err := runner.Start(adapter, runner.Options{
		Prompt:      prompt,
		Resume:      resume,
		Dir:         opts.Dir,
		Env:         opts.Env,
		Timeout:     opts.Timeout,
		CancelGrace: opts.CancelGrace,
		OwnerPID:    opts.OwnerPID,
		Registry:    a.registry,
	})
	if err != nil {
		return nil, err
	}
	s := &Session{agent: a, runner: r, prompt: prompt, dir: opts.Dir}
	if resume != nil {
		s.setToken(resume)
	}
	return s, nil
}

// Cancel requests termination of the session's runner.
func (s *Session) Cancel(reason string) {
	s.runner.Cancel(reason)
}

// ResumeToken returns the latest tracked token, or nil. The tracker
// updates as Events is consumed.
func (s *Session) ResumeToken() *event.ResumeToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) setToken(token *event.ResumeToken) {
	if token == nil {
		return
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	_ = s.agent.index.Record(*token, s.dir, engine.TruncateTitle(s.prompt))
}

// Events returns the session's simplified event channel. The channel
// closes once the stream terminates; the terminal agent_end marker is
// filtered out.
func (s *Session) Events(ctx context.Context) <-chan SimpleEvent {
	out := make(chan SimpleEvent)
	reader := s.runner.Stream().NewReader()

	go func() {
		defer close(out)
		defer reader.Close()
		for {
			it, err := reader.Next(ctx)
			if errors.Is(err, stream.ErrDrained) {
				return
			}
			if err != nil {
				return
			}
			ev, keep := s.simplify(it)
			if !keep {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// simplify maps one stream item to the tuple shape, updating the
// token tracker on Started and token-carrying Completed events.
func (s *Session) simplify(it stream.Item) (SimpleEvent, bool) {
	switch it.Type {
	case stream.ItemEvent:
		return s.simplifyEvent(it.Event)
	case stream.ItemCanceled:
		return SimpleEvent{Type: SimpleError, Reason: "canceled: " + it.Reason}, true
	case stream.ItemError:
		return SimpleEvent{Type: SimpleError, Reason: it.Reason}, true
	case stream.ItemAgentEnd:
		return SimpleEvent{}, false
	}
	return SimpleEvent{}, false
}

func (s *Session) simplifyEvent(ev *event.Event) (SimpleEvent, bool) {
	switch ev.Type {
	case event.TypeStarted:
		s.setToken(ev.Resume)
		return SimpleEvent{Type: SimpleStarted, Token: ev.Resume}, true

	case event.TypeAction:
		opts := map[string]any{}
		if ev.OK != nil {
			opts["ok"] = *ev.OK
		}
		if ev.Message != "" {
			opts["message"] = ev.Message
		}
		if ev.Level != "" {
			opts["level"] = ev.Level
		}
		return SimpleEvent{Type: SimpleAction, Action: ev.Action, Phase: ev.Phase, Opts: opts}, true

	case event.TypeCompleted:
		if ev.Resume != nil {
			s.setToken(ev.Resume)
		}
		opts := map[string]any{"ok": ev.Succeeded()}
		if ev.Err != "" {
			opts["error"] = ev.Err
		}
		if ev.Usage != nil {
			opts["usage"] = ev.Usage
		}
		if ev.Resume != nil {
			opts["resume"] = *ev.Resume
		}
		return SimpleEvent{Type: SimpleCompleted, Answer: ev.Answer, Opts: opts}, true
	}
	return SimpleEvent{}, false
}

// CollectAnswer drains the session's events and returns the final
// answer. A failed completion or a terminal stream error surfaces as
// an error alongside whatever answer text was captured.
func (s *Session) CollectAnswer(ctx context.Context) (string, error) {
	return s.collect(ctx, nil)
}

func (s *Session) collect(ctx context.Context, onEvent func(SimpleEvent)) (string, error) {
	var (
		answer    string
		completed bool
		ok        bool
		failMsg   string
	)
	for ev := range s.Events(ctx) {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case SimpleCompleted:
			completed = true
			answer = ev.Answer
			ok, _ = ev.Opts["ok"].(bool)
			if msg, exists := ev.Opts["error"].(string); exists {
				failMsg = msg
			}
		case SimpleError:
			if failMsg == "" {
				failMsg = ev.Reason
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return answer, err
	}
	if !completed {
		if failMsg == "" {
			failMsg = "session produced no completion"
		}
		return answer, errors.New(failMsg)
	}
	if !ok {
		if failMsg == "" {
			failMsg = "session failed"
		}
		return answer, errors.New(failMsg)
	}
	return answer, nil
}

// Run starts a session and collects its answer, invoking onEvent for
// every simplified event when supplied.
func (a *Agent) Run(ctx context.Context, prompt string, opts StartOptions, onEvent func(SimpleEvent)) (string, error) {
	s, err := a.Start(prompt, opts)
	if err != nil {
		return "", err
	}
	return s.collect(ctx, onEvent)
}
