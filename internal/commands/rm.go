package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
)

func init() {
	Register(&RmCmd{})
}

// RmCmd implements the rm command.
type RmCmd struct {
	view viewFlags
	yes  bool
}

// SetYes sets the confirmation flag (for testing).
func (c *RmCmd) SetYes(yes bool) {
	c.yes = yes
}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return []string{"delete"} }
func (c *RmCmd) Synopsis() string  { return "Delete a task permanently" }
func (c *RmCmd) Usage() string {
	return "dcc rm [--category <category>] [--filter <filter>] --yes <n>"
}
func (c *RmCmd) NeedsAuth() bool { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
	fs.BoolVar(&c.yes, "yes", false, "")
	fs.BoolVar(&c.yes, "y", false, "")
}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	task, code := lookupTask(ctx, env, c.view, args, errOut)
	if code != exitcode.Success {
		return code
	}

	// Deletion is permanent, so it needs explicit confirmation.
	if !c.yes {
		fmt.Fprintf(errOut, "error: this permanently deletes %q; re-run with --yes to confirm\n", task.Text)
		return exitcode.UserError
	}

	if err := env.Store.DeleteTask(ctx, env.User.ID, task.ID); err != nil {
		env.logf("delete %s failed: %v", task.ID, err)
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
