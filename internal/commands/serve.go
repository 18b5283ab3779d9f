package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/web"
)

func init() {
	Register(&ServeCmd{})
}

// ServeCmd runs the dashboard HTTP server for the signed-in user.
type ServeCmd struct {
	addr string
}

func (c *ServeCmd) Name() string      { return "serve" }
func (c *ServeCmd) Aliases() []string { return nil }
func (c *ServeCmd) Synopsis() string  { return "Run the web dashboard" }
func (c *ServeCmd) Usage() string     { return "dcc serve [--addr <host:port>]" }
func (c *ServeCmd) NeedsAuth() bool   { return true }

func (c *ServeCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", "", "")
}

func (c *ServeCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	addr := c.addr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	opts := web.Options{
		Store:     env.Store,
		User:      env.User,
		Assistant: env.Assistant,
		Log:       env.Log,
		BasePath:  cfg.BasePath,
		Now:       env.Now,
	}
	// The local store has no sign-in; its user is fixed.
	if cfg.Backend == config.BackendFirestore && env.Auth != nil {
		opts.Session = env.Auth
	}
	srv := web.New(opts)
	defer srv.Close()

	if !cfg.Quiet {
		fmt.Fprintf(errOut, "serving on %s (press Ctrl-C to stop)\n", addr)
	}
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
