package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

func init() {
	Register(&EditCmd{})
}

// EditCmd replaces the text of a task.
type EditCmd struct {
	view viewFlags
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return nil }
func (c *EditCmd) Synopsis() string  { return "Change the text of a task" }
func (c *EditCmd) Usage() string {
	return "dcc edit [--category <category>] [--filter <filter>] <n> <text...>"
}
func (c *EditCmd) NeedsAuth() bool { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		if _, err := ParseTaskRef(args); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
	}
	if len(args) < 2 || strings.TrimSpace(strings.Join(args[1:], " ")) == "" {
		fmt.Fprintln(errOut, "error: task text required")
		return exitcode.UserError
	}
	text := strings.TrimSpace(strings.Join(args[1:], " "))

	task, code := lookupTask(ctx, env, c.view, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := env.Store.UpdateTask(ctx, env.User.ID, task.ID, service.TaskPatch{Text: &text}); err != nil {
		env.logf("edit %s failed: %v", task.ID, err)
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
