package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/output"
)

func init() {
	Register(&APIKeyCmd{})
}

// APIKeyCmd manages the AI API key stored for the user.
type APIKeyCmd struct{}

func (c *APIKeyCmd) Name() string      { return "apikey" }
func (c *APIKeyCmd) Aliases() []string { return nil }
func (c *APIKeyCmd) Synopsis() string  { return "Show, set or remove the AI API key" }
func (c *APIKeyCmd) Usage() string     { return "dcc apikey show | set <key> | rm" }
func (c *APIKeyCmd) NeedsAuth() bool   { return true }

func (c *APIKeyCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *APIKeyCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "show":
		key, ok, err := env.Store.GetAPIKey(ctx, env.User.ID)
		if err != nil {
			return reportError(errOut, err)
		}
		if !ok {
			if !cfg.Quiet {
				fmt.Fprintln(out, "no API key saved")
			}
			return exitcode.Success
		}
		fmt.Fprintln(out, output.MaskKey(key))
		return exitcode.Success

	case "set":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			fmt.Fprintln(errOut, "error: API key required")
			return exitcode.UserError
		}
		if err := env.Store.SetAPIKey(ctx, env.User.ID, strings.TrimSpace(args[1])); err != nil {
			return reportError(errOut, err)
		}

	case "rm", "delete":
		if err := env.Store.DeleteAPIKey(ctx, env.User.ID); err != nil {
			return reportError(errOut, err)
		}

	default:
		fmt.Fprintf(errOut, "error: unknown apikey action: %s\n", sub)
		return exitcode.UserError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
