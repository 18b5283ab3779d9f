package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/output"
	"dcc/internal/service"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `dcc` (no args) and `dcc list [--category C] [--filter F]`.
type ListCmd struct {
	view viewFlags
}

// SetView sets the category and filter (for testing).
func (c *ListCmd) SetView(category, filter string) {
	c.view = viewFlags{category: category, filter: filter}
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string {
	return "dcc list [--category <category>] [--filter all|active|completed]"
}
func (c *ListCmd) NeedsAuth() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	q, err := c.view.query(env.User.ID)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	tasks, err := env.Store.ListTasks(ctx, q)
	if err != nil {
		return reportError(errOut, err)
	}

	// The unfiltered All view has no header.
	if q.Category != service.CategoryAll || q.Filter != service.FilterAll {
		output.FormatViewHeader(out, q.Category, q.Filter)
	}
	output.FormatTasks(out, tasks, cfg.Quiet)
	return exitcode.Success
}
