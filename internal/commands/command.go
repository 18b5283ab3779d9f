// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"
	"log"
	"time"

	"dcc/internal/assistant"
	"dcc/internal/auth"
	"dcc/internal/config"
	"dcc/internal/service"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a signed-in user and a store.
	// Commands like help, version, login, logout return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings).
	// env.Auth and env.Log are always set; env.Store, env.User and
	// env.Assistant are set only if NeedsAuth() returns true.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int
}

// Env carries the collaborators a command runs against.
type Env struct {
	Store     service.Service
	User      auth.User
	Auth      *auth.Manager
	Assistant *assistant.Assistant
	Log       *log.Logger

	// Now is the clock for new task positions. Nil means time.Now.
	Now func() time.Time
}

func (e *Env) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Printf(format, args...)
	}
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
