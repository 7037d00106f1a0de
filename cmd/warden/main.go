// Command warden is a thin CLI over the subagent facade: run a prompt
// through an engine, resume sessions, and inspect the session index.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/warden/internal/config"
	"github.com/HyphaGroup/warden/internal/event"
	"github.com/HyphaGroup/warden/internal/resumetext"
	"github.com/HyphaGroup/warden/internal/sessionindex"
	"github.com/HyphaGroup/warden/internal/subagent"
)

var (
	flagEngine  string
	flagDir     string
	flagDataDir string
	flagQuiet   bool
)

func main() {
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Supervise agentic coding CLIs as subagents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagEngine, "engine", "codex", "engine to use")
	root.PersistentFlags().StringVar(&flagDir, "cwd", "", "working directory for the engine")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "session index directory (empty disables the index)")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress action progress on stderr")

	root.AddCommand(runCmd(), resumeCmd(), enginesCmd(), sessionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newAgent() (*subagent.Agent, *sessionindex.Index, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, err
	}
	var index *sessionindex.Index
	if flagDataDir != "" {
		index, err = sessionindex.Open(flagDataDir)
		if err != nil {
			return nil, nil, err
		}
	}
	agent, err := subagent.New(flagEngine, subagent.AgentOptions{Config: cfg, Index: index})
	if err != nil {
		return nil, nil, err
	}
	return agent, index, nil
}

// interruptContext cancels on the first SIGINT/SIGTERM.
func interruptContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func onEvent(ev subagent.SimpleEvent) {
	if flagQuiet {
		return
	}
	switch ev.Type {
	case subagent.SimpleStarted:
		fmt.Fprintf(os.Stderr, "session: %s\n", resumetext.Format(*ev.Token))
	case subagent.SimpleAction:
		fmt.Fprintf(os.Stderr, "[%s] %s (%s)\n", ev.Action.Kind, ev.Action.Title, ev.Phase)
	case subagent.SimpleError:
		fmt.Fprintf(os.Stderr, "error: %s\n", ev.Reason)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a prompt and print the final answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, index, err := newAgent()
			if err != nil {
				return err
			}
			defer func() { _ = index.Close() }()

			answer, err := agent.Run(interruptContext(), args[0], subagent.StartOptions{Dir: flagDir}, onEvent)
			if answer != "" {
				fmt.Println(answer)
			}
			return err
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <token-or-resume-line> <prompt>",
		Short: "Resume a session and send a follow-up prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := event.ResumeToken{Engine: flagEngine, Value: args[0]}
			if extracted, ok := resumetext.Extract(args[0]); ok {
				token = extracted
				flagEngine = extracted.Engine
			}

			agent, index, err := newAgent()
			if err != nil {
				return err
			}
			defer func() { _ = index.Close() }()

			session, err := agent.Resume(token, args[1], subagent.StartOptions{Dir: flagDir})
			if err != nil {
				return err
			}
			ctx := interruptContext()
			go func() {
				<-ctx.Done()
				session.Cancel("interrupt")
			}()

			var answer string
			for ev := range session.Events(context.Background()) {
				onEvent(ev)
				if ev.Type == subagent.SimpleCompleted {
					answer = ev.Answer
				}
			}
			if answer != "" {
				fmt.Println(answer)
			}
			return nil
		},
	}
}

func enginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List supported engines and availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			available := map[string]bool{}
			for _, name := range subagent.Detect() {
				available[name] = true
			}
			for _, name := range subagent.Engines() {
				mark := " "
				if available[name] {
					mark = "*"
				}
				fmt.Printf("%s %-10s %s\n", mark, name,
					resumetext.Format(event.ResumeToken{Engine: name, Value: "<id>"}))
			}
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagDataDir == "" {
				return fmt.Errorf("sessions requires --data-dir")
			}
			index, err := sessionindex.Open(flagDataDir)
			if err != nil {
				return err
			}
			defer func() { _ = index.Close() }()

			entries, err := index.Recent("", 20)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%-10s %-30s %s  %s\n", e.Token.Engine, e.Token.Value,
					e.LastUsed.Local().Format("2006-01-02 15:04"), e.Title)
			}
			return nil
		},
	}
}
