// Rivecore answers chat messages from a directory of RiveScript-style rules.
// Usage: rivecore [--version] [--config <file>] [--user <id>] [--plain]
// [--script <file>] [--trace] [--serve] <rules_directory>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nathoo/rivecore/cli"
	"github.com/nathoo/rivecore/config"
	"github.com/nathoo/rivecore/engine"
	"github.com/nathoo/rivecore/engine/state"
	"github.com/nathoo/rivecore/loader"
	"github.com/nathoo/rivecore/server"
	"github.com/nathoo/rivecore/store"
	"github.com/nathoo/rivecore/tui"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = "Usage: rivecore [--version] [--config <file>] [--user <id>] [--plain] [--script <file>] [--trace] [--serve] <rules_directory>\n"

type options struct {
	plain      bool
	trace      bool
	serve      bool
	rulesDir   string
	scriptFile string
	configFile string
	user       string
}

func main() {
	opts, ok := parseArgs(os.Args[1:])
	if !ok {
		return
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs reads the command line. It returns false when the program
// should stop without running.
func parseArgs(args []string) (options, bool) {
	var opts options
	value := func(i int, flag string) string {
		if i+1 >= len(args) {
			fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
			os.Exit(1)
		}
		return args[i+1]
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version":
			fmt.Printf("rivecore %s (commit %s, built %s)\n", version, commit, date)
			return opts, false
		case "--plain":
			opts.plain = true
		case "--trace":
			opts.trace = true
		case "--serve":
			opts.serve = true
		case "--script":
			opts.scriptFile = value(i, "--script")
			i++
		case "--config":
			opts.configFile = value(i, "--config")
			i++
		case "--user":
			opts.user = value(i, "--user")
			i++
		default:
			if opts.rulesDir == "" {
				opts.rulesDir = args[i]
			}
		}
	}

	if opts.rulesDir == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	return opts, true
}

func run(opts options) error {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return err
		}
	}

	log, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer st.Close()

	// Load and compile the rules.
	res, err := loader.Load(opts.rulesDir)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	for _, w := range res.Warnings {
		log.Warn("rule warning", zap.String("warning", w))
	}

	brain, problems := state.NewBrain(res.Rules)
	for _, p := range problems {
		log.Warn("rule skipped", zap.Error(p))
	}
	if cfg.Strict && len(problems) > 0 {
		return fmt.Errorf("%d rule(s) failed to compile in strict mode", len(problems))
	}
	log.Info("brain loaded",
		zap.String("dir", opts.rulesDir),
		zap.Int("triggers", brain.Triggers),
		zap.Int("topics", len(brain.Topics.Names())))

	// The TUI owns the terminal, so it logs to a file or nowhere.
	useTUI := !opts.serve && opts.scriptFile == "" && !opts.plain && isTerminal()
	if useTUI && cfg.Log.File == "" {
		log = zap.NewNop()
	}

	eng := engine.New(brain, engine.Options{
		Config: &cfg,
		Store:  st,
		Logger: log,
		Env:    engine.OSEnv{},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.serve {
		return server.New(eng).ListenAndServe(ctx, cfg.Server.Addr)
	}

	// Local shells share one stored session unless --user says otherwise.
	if opts.user == "" {
		opts.user = "local"
	}

	// Script mode: open file, force plain, echo input.
	if opts.scriptFile != "" {
		f, err := os.Open(opts.scriptFile)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		c := cli.New(eng, opts.user)
		c.In = f
		c.EchoInput = true
		c.Trace = opts.trace
		return c.Run(ctx)
	}

	// Use plain CLI if --plain flag or stdout is not a terminal.
	if !useTUI {
		c := cli.New(eng, opts.user)
		c.Trace = opts.trace
		return c.Run(ctx)
	}

	return tui.Run(ctx, eng, opts.user)
}

// isTerminal returns true if stdout is a terminal (not piped/redirected).
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
