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
	Register(&ParseCmd{})
}

// ParseCmd previews the fields the AI would fill in, without creating a task.
type ParseCmd struct{}

func (c *ParseCmd) Name() string      { return "parse" }
func (c *ParseCmd) Aliases() []string { return nil }
func (c *ParseCmd) Synopsis() string  { return "Preview AI-parsed task fields" }
func (c *ParseCmd) Usage() string     { return "dcc parse <text...>" }
func (c *ParseCmd) NeedsAuth() bool   { return true }

func (c *ParseCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ParseCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		fmt.Fprintln(errOut, "error: task text required")
		return exitcode.UserError
	}

	res, err := parseWithAI(ctx, env, text)
	if err != nil {
		return reportError(errOut, err)
	}
	output.FormatResult(out, res)
	return exitcode.Success
}
