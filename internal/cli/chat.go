package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sudosu-ai/sudosu/internal/config"
	"github.com/sudosu-ai/sudosu/internal/logger"
	"github.com/sudosu-ai/sudosu/pkg/registry"
	"github.com/sudosu-ai/sudosu/pkg/session"
	"github.com/sudosu-ai/sudosu/pkg/stream"
	"github.com/sudosu-ai/sudosu/pkg/transcript"
)

// runtime bundles everything the chat loop needs.
type runtime struct {
	cfg        *config.Config
	log        *logger.Logger
	controller *session.Controller
	reg        *registry.Registry
	store      *transcript.Store
	watcher    *registry.StalenessWatcher
	renderer   *terminalRenderer

	// stdin is shared with the confirmation approver so a prompt answer and
	// the next chat line come off the same buffer.
	stdin *bufio.Reader
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := rt.controller.Start(ctx); err != nil {
		return err
	}

	// One-shot: submit the arguments as a single turn and exit.
	if len(args) > 0 {
		return rt.runTurn(ctx, strings.Join(args, " "))
	}

	return rt.chatLoop(ctx)
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Connection.Mode = mode
	}
	if restricted {
		cfg.Sandbox.Restricted = true
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Logging.File == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			cfg.Logging.File = filepath.Join(home, ".sudosu", "logs", "sudosu.log")
		}
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Pretty: cfg.Logging.Pretty,
	})
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	globalDir := ""
	if home, herr := os.UserHomeDir(); herr == nil {
		globalDir = filepath.Join(home, ".sudosu")
	}
	projectDir := filepath.Join(root, ".sudosu")
	reg := registry.New(registry.Config{
		ProjectDir:    projectDir,
		GlobalDir:     globalDir,
		FallbackAgent: cfg.DefaultAgent,
		Logger:        log.Zerolog(),
	})

	var store *transcript.Store
	if cfg.Transcript.Enabled && cfg.Transcript.Path != "" {
		store, err = transcript.Open(transcript.Config{
			Path:          cfg.Transcript.Path,
			RetentionDays: cfg.Transcript.RetentionDays,
			PruneSchedule: cfg.Transcript.PruneSchedule,
			Logger:        log.Zerolog(),
		})
		if err != nil {
			// A broken transcript store must not block the session.
			zl := log.Zerolog()
			zl.Warn().Err(err).Msg("Transcript store unavailable")
			store = nil
		}
	}

	renderer := newTerminalRenderer(os.Stdout)
	stdin := bufio.NewReader(os.Stdin)

	sessCfg := session.Config{
		Connection:     cfg.Connection,
		Transport:      cfg.Transport,
		ProjectRoot:    root,
		DefaultAgent:   cfg.DefaultAgent,
		SandboxTimeout: cfg.Sandbox.Timeout,
		ApprovedPaths:  cfg.Sandbox.ApprovedPaths,
		Restricted:     cfg.Sandbox.Restricted,
		Policy:         stream.Policy{BlockStreaming: cfg.Stream.BlockStreaming},
		Registry:       reg,
		Renderer:       renderer,
		Approver:       session.NewCLIApprover(stdin, os.Stdout, log.Zerolog()),
		Logger:         log.Zerolog(),
	}
	if store != nil {
		sessCfg.Recorder = store
	}

	controller, err := session.New(sessCfg)
	if err != nil {
		log.Close()
		return nil, err
	}

	// The watcher only flags edits; profiles stay frozen for this session.
	watcher, werr := registry.NewStalenessWatcher([]string{projectDir, globalDir}, log.Zerolog())
	if werr != nil {
		watcher = nil
	}

	return &runtime{
		cfg:        cfg,
		log:        log,
		controller: controller,
		reg:        reg,
		store:      store,
		watcher:    watcher,
		renderer:   renderer,
		stdin:      stdin,
	}, nil
}

func (rt *runtime) close() {
	_ = rt.controller.End()
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	_ = rt.log.Close()
}

func (rt *runtime) chatLoop(ctx context.Context) error {
	fmt.Printf("sudosu %s (%s mode). Type /help for commands.\n", version, rt.cfg.Connection.Mode)

	staleNotified := false
	for {
		if rt.watcher != nil && rt.watcher.Stale() && !staleNotified {
			fmt.Println("note: agent profiles changed on disk; restart to pick them up")
			staleNotified = true
		}

		fmt.Print("> ")
		raw, rerr := rt.stdin.ReadString('\n')
		if rerr != nil {
			fmt.Println()
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := rt.runCommand(line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := rt.runTurn(ctx, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// runTurn submits one input. Ctrl+C during the turn cancels it instead of
// killing the client.
func (rt *runtime) runTurn(ctx context.Context, input string) error {
	turnCtx, stop := context.WithCancel(ctx)
	defer stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			fmt.Println("\n(cancelling turn)")
			stop()
		case <-turnCtx.Done():
		}
	}()

	turn, err := rt.controller.Submit(turnCtx, input)
	rt.renderer.finish()

	switch {
	case errors.Is(err, session.ErrBusy):
		return fmt.Errorf("still working on the previous turn")
	case errors.Is(err, registry.ErrUnknownAgent):
		return err
	case err != nil:
		return err
	}

	switch turn.State {
	case stream.TurnErrored:
		fmt.Printf("turn failed: %s\n", turn.Error)
	case stream.TurnCancelled:
		fmt.Println("turn cancelled")
	}
	return nil
}

func (rt *runtime) runCommand(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		rt.printHelp()
	case "/agents":
		err = rt.printAgents()
	case "/config":
		writeConfig(os.Stdout, rt.cfg, rt.controller.Sandbox().Root())
	case "/integrations":
		writeIntegrations(os.Stdout, rt.controller.Sandbox().Providers().Tools())
	case "/memory":
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		err = rt.memoryCommand(arg)
	case "/cancel":
		if !rt.controller.CancelActive() {
			fmt.Println("no active turn")
		}
	case "/quit", "/exit":
		return true, nil
	default:
		err = fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, err
}

func (rt *runtime) printHelp() {
	fmt.Print(`commands:
  @agent message   talk to a specific agent
  message          talk to the default agent
  /agents          list available agents
  /config          show the effective configuration
  /integrations    list registered integration tools
  /memory stats    show transcript statistics
  /memory clear    delete the stored transcript
  /cancel          cancel the active turn
  /quit            leave
`)
}

func (rt *runtime) printAgents() error {
	names, err := rt.reg.Names()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no agent profiles found (add YAML files under .sudosu/agents/)")
		return nil
	}
	for _, name := range names {
		fmt.Printf("  @%s\n", name)
	}
	return nil
}

func (rt *runtime) memoryCommand(arg string) error {
	if rt.store == nil {
		return fmt.Errorf("transcript store is disabled")
	}
	switch arg {
	case "", "stats":
		stats, err := rt.store.TotalStats()
		if err != nil {
			return err
		}
		fmt.Printf("turns: %d (completed %d, errored %d, cancelled %d), deltas: %d, tool calls: %d\n",
			stats.Turns, stats.Completed, stats.Errored, stats.Cancelled, stats.Deltas, stats.ToolCalls)
		if !stats.Oldest.IsZero() {
			fmt.Printf("oldest: %s\n", stats.Oldest.Format("2006-01-02 15:04"))
		}
		return nil
	case "clear":
		if err := rt.store.Clear(); err != nil {
			return err
		}
		fmt.Println("transcript cleared")
		return nil
	default:
		return fmt.Errorf("usage: /memory [stats|clear]")
	}
}
