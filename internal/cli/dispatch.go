package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"dcc/internal/assistant"
	"dcc/internal/assistant/gemini"
	"dcc/internal/auth"
	"dcc/internal/backend/firestore"
	"dcc/internal/backend/sqlite"
	"dcc/internal/commands"
	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

// EnvFactory fills in the store, user and assistant of env from cfg.
// Used to inject the backend during dispatch.
type EnvFactory func(ctx context.Context, cfg *config.Config, env *commands.Env) error

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  EnvFactory
}

// NewDispatcher creates a new dispatcher with the given registry and env factory.
func NewDispatcher(registry *commands.Registry, factory EnvFactory) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> dispatch to "list" command with no args
	if len(args) == 0 {
		return d.dispatch(ctx, "list", nil, out, errOut)
	}

	cmdName := args[0]

	// If first token starts with -, it's an error (flags require a command)
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatchCommand(ctx, cmd, args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	// Common flags
	var configDir string
	var quiet bool
	var debug bool

	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")

	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return reportFlagError(errOut, err)
	}

	// Check if first positional arg starts with - (should have been parsed as flag)
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	}

	logger := cfg.Logger()
	env := &commands.Env{
		Auth: auth.NewManager(cfg, logger),
		Log:  logger,
	}

	if cmd.NeedsAuth() {
		if d.factory != nil {
			if err := d.factory(ctx, cfg, env); err != nil {
				logger.Printf("%s: setup failed: %v", cmd.Name(), err)
				return reportSetupError(errOut, err)
			}
			if env.Store != nil {
				defer env.Store.Close()
			}
		} else {
			// No factory - check for required auth files and report user-friendly errors
			if !cfg.HasOAuthClient() {
				fmt.Fprintf(errOut, "error: oauth_client.json not found in %s\n", cfg.Dir)
				return exitcode.AuthError
			}
			if !cfg.HasToken() {
				fmt.Fprintf(errOut, "error: not logged in (run: dcc login)\n")
				return exitcode.AuthError
			}
			// No factory and no store - env.Store remains nil
			// Commands must handle a nil store (this path is for pre-flight checks only)
		}
	}

	return cmd.Run(ctx, cfg, env, positionalArgs, out, errOut)
}

func reportFlagError(errOut io.Writer, err error) int {
	errStr := err.Error()

	// Check for missing flag value
	if strings.Contains(errStr, "needs a value") || strings.Contains(errStr, "flag needs an argument") {
		parts := strings.Split(errStr, ":")
		if len(parts) > 0 {
			flagPart := strings.TrimSpace(parts[len(parts)-1])
			fmt.Fprintf(errOut, "error: flag needs an argument: %s\n", flagPart)
			return exitcode.UserError
		}
	}

	if strings.HasPrefix(errStr, "flag provided but not defined:") {
		flagName := strings.TrimPrefix(errStr, "flag provided but not defined: ")
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", flagName)
		return exitcode.UserError
	}

	fmt.Fprintf(errOut, "error: %s\n", errStr)
	return exitcode.UserError
}

// reportSetupError maps a failure to open the command environment to an exit code.
func reportSetupError(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, config.ErrInvalid):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.AuthError
	case errors.Is(err, auth.ErrNotSignedIn):
		fmt.Fprintln(errOut, "error: not logged in (run: dcc login)")
		return exitcode.AuthError
	case errors.Is(err, auth.ErrNoOAuthClient), errors.Is(err, service.ErrUnauthorized):
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return exitcode.AuthError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}

// OpenEnv is the production EnvFactory. It validates cfg, resolves the
// signed-in user and opens the configured store. The sqlite backend works
// offline as auth.LocalUser when nobody is signed in.
func OpenEnv(ctx context.Context, cfg *config.Config, env *commands.Env) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	user, signedIn, err := env.Auth.Current()
	if err != nil {
		return err
	}

	switch cfg.Backend {
	case config.BackendSQLite:
		if !signedIn {
			user = auth.LocalUser
		}
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.PollInterval, env.Log)
		if err != nil {
			return err
		}
		env.Store = store

	default:
		if !signedIn {
			return auth.ErrNotSignedIn
		}
		ts, err := env.Auth.TokenSource(ctx)
		if err != nil {
			return err
		}
		store, err := firestore.New(ctx, cfg, ts, env.Log)
		if err != nil {
			return err
		}
		env.Store = store
	}

	env.User = user
	env.Assistant = assistant.New(gemini.New(cfg.AIModel), env.Log)
	env.Log.Printf("using %s backend as %s", cfg.Backend, user.ID)
	return nil
}
