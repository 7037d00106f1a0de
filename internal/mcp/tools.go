// Package mcp exposes the subagent facade as MCP tools.
//
// tools.go - tool definitions and handlers
//
// Input schemas are reflected from the params structs with
// jsonschema-go, so tool signatures and Go types cannot drift apart.

package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/resumetext"
	"github.com/HyphaGroup/warden/internal/subagent"
)

// NewTextResult creates a CallToolResult with text content.
func NewTextResult(text string) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		Content: []mcp_sdk.Content{&mcp_sdk.TextContent{Text: text}},
	}
}

// NewErrorResult creates a CallToolResult indicating an error.
func NewErrorResult(msg string) *mcp_sdk.CallToolResult {
	return &mcp_sdk.CallToolResult{
		IsError: true,
		Content: []mcp_sdk.Content{&mcp_sdk.TextContent{Text: msg}},
	}
}

// addTool registers one typed tool on the SDK server.
func addTool[P any](server *mcp_sdk.Server, name, description string,
	handler func(ctx context.Context, params P) (any, error)) {

	schema, err := jsonschema.For[P](nil)
	if err != nil {
		schema = &jsonschema.Schema{Type: "object"}
	}

	tool := &mcp_sdk.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
	server.AddTool(tool, func(ctx context.Context, req *mcp_sdk.CallToolRequest) (*mcp_sdk.CallToolResult, error) {
		var params P
		if req.Params != nil && req.Params.Arguments != nil {
			if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
				return NewErrorResult("invalid arguments: " + err.Error()), nil
			}
		}
		result, err := handler(ctx, params)
		if err != nil {
			return NewErrorResult(err.Error()), nil
		}
		data, err := json.Marshal(result)
		if err != nil {
			return NewErrorResult(err.Error()), nil
		}
		return NewTextResult(string(data)), nil
	})
}

type runParams struct {
	Engine    string `json:"engine"`
	Prompt    string `json:"prompt"`
	Cwd       string `json:"cwd,omitempty"`
	Resume    string `json:"resume,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

type sessionParams struct {
	SessionID  string `json:"session_id"`
	SinceIndex int    `json:"since_index,omitempty"`
}

type cancelParams struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type emptyParams struct{}

func (p runParams) startOptions() subagent.StartOptions {
	opts := subagent.StartOptions{Dir: p.Cwd}
	if p.TimeoutMS > 0 {
		opts.Timeout = time.Duration(p.TimeoutMS) * time.Millisecond
	}
	return opts
}

// registerTools wires every subagent tool onto the SDK server.
func (s *Server) registerTools(server *mcp_sdk.Server) {
	addTool(server, "subagent_run",
		"Run a prompt through an agent CLI and wait for its final answer.",
		func(ctx context.Context, p runParams) (any, error) {
			agent, err := s.agent(p.Engine)
			if err != nil {
				return nil, err
			}

			var session *subagent.Session
			if p.Resume != "" {
				session, err = agent.Resume(event.ResumeToken{Engine: p.Engine, Value: p.Resume}, p.Prompt, p.startOptions())
			} else {
				session, err = agent.Start(p.Prompt, p.startOptions())
			}
			if err != nil {
				return nil, err
			}

			answer, runErr := session.CollectAnswer(ctx)
			result := map[string]any{"answer": answer}
			if token := session.ResumeToken(); token != nil {
				result["resume"] = *token
				result["resume_line"] = resumetext.Format(*token)
			}
			if runErr != nil {
				result["error"] = runErr.Error()
			}
			return result, nil
		})

	addTool(server, "subagent_start",
		"Start an agent session in the background; poll subagent_events for progress.",
		func(ctx context.Context, p runParams) (any, error) {
			agent, err := s.agent(p.Engine)
			if err != nil {
				return nil, err
			}
			var session *subagent.Session
			if p.Resume != "" {
				session, err = agent.Resume(event.ResumeToken{Engine: p.Engine, Value: p.Resume}, p.Prompt, p.startOptions())
			} else {
				session, err = agent.Start(p.Prompt, p.startOptions())
			}
			if err != nil {
				return nil, err
			}
			active := s.trackSession(p.Engine, session)
			return map[string]any{"session_id": active.id, "engine": p.Engine}, nil
		})

	addTool(server, "subagent_events",
		"Fetch buffered session events after since_index (-1 for all).",
		func(ctx context.Context, p sessionParams) (any, error) {
			active, err := s.lookupSession(p.SessionID)
			if err != nil {
				return nil, err
			}
			events, err := active.buffer.After(p.SinceIndex)
			if err != nil {
				return nil, err
			}
			active.mu.Lock()
			finished := active.finished
			active.mu.Unlock()
			return map[string]any{
				"events":     events,
				"last_index": active.buffer.LastIndex(),
				"finished":   finished,
				"dropped":    active.buffer.Dropped(),
			}, nil
		})

	addTool(server, "subagent_cancel",
		"Cancel a running session.",
		func(ctx context.Context, p cancelParams) (any, error) {
			active, err := s.lookupSession(p.SessionID)
			if err != nil {
				return nil, err
			}
			reason := p.Reason
			if reason == "" {
				reason = "user"
			}
			active.session.Cancel(reason)
			return map[string]any{"canceled": true}, nil
		})

	addTool(server, "subagent_locks",
		"Snapshot the session-lock registry.",
		func(ctx context.Context, _ emptyParams) (any, error) {
			return map[string]any{"locks": s.registry.Snapshot()}, nil
		})

	addTool(server, "engine_list",
		"List supported engines, their availability on PATH, and resume-line formats.",
		func(ctx context.Context, _ emptyParams) (any, error) {
			available := map[string]bool{}
			for _, name := range subagent.Detect() {
				available[name] = true
			}
			engines := make([]map[string]any, 0)
			for _, name := range subagent.Engines() {
				engines = append(engines, map[string]any{
					"engine":      name,
					"available":   available[name],
					"resume_line": resumetext.Format(event.ResumeToken{Engine: name, Value: "<id>"}),
				})
			}
			return map[string]any{"engines": engines}, nil
		})
}
