package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

func init() {
	Register(&DoneCmd{})
	Register(&UndoneCmd{})
}

// DoneCmd implements the done command.
type DoneCmd struct {
	view viewFlags
}

// SetView sets the category and filter task numbers refer to (for testing).
func (c *DoneCmd) SetView(category, filter string) {
	c.view = viewFlags{category: category, filter: filter}
}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return nil }
func (c *DoneCmd) Synopsis() string  { return "Mark a task completed" }
func (c *DoneCmd) Usage() string     { return "dcc done [--category <category>] [--filter <filter>] <n>" }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	return runSetCompleted(ctx, cfg, env, c.view, true, args, out, errOut)
}

// UndoneCmd marks a completed task active again.
type UndoneCmd struct {
	view viewFlags
}

// SetView sets the category and filter task numbers refer to (for testing).
func (c *UndoneCmd) SetView(category, filter string) {
	c.view = viewFlags{category: category, filter: filter}
}

func (c *UndoneCmd) Name() string      { return "undone" }
func (c *UndoneCmd) Aliases() []string { return []string{"reopen"} }
func (c *UndoneCmd) Synopsis() string  { return "Mark a task not completed" }
func (c *UndoneCmd) Usage() string     { return "dcc undone [--category <category>] [--filter <filter>] <n>" }
func (c *UndoneCmd) NeedsAuth() bool   { return true }

func (c *UndoneCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *UndoneCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	return runSetCompleted(ctx, cfg, env, c.view, false, args, out, errOut)
}

func runSetCompleted(ctx context.Context, cfg *config.Config, env *Env, view viewFlags, completed bool, args []string, out, errOut io.Writer) int {
	task, code := lookupTask(ctx, env, view, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if err := env.Store.UpdateTask(ctx, env.User.ID, task.ID, service.TaskPatch{Completed: &completed}); err != nil {
		env.logf("set completed=%t on %s failed: %v", completed, task.ID, err)
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// lookupTask resolves the task number in args[0] against view.
func lookupTask(ctx context.Context, env *Env, view viewFlags, args []string, errOut io.Writer) (service.Task, int) {
	num, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}

	q, err := view.query(env.User.ID)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.Task{}, exitcode.UserError
	}

	task, err := findTaskByNumber(ctx, env.Store, q, num)
	if err != nil {
		var oor errOutOfRange
		if errors.As(err, &oor) {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return service.Task{}, exitcode.UserError
		}
		return service.Task{}, reportError(errOut, err)
	}
	return task, exitcode.Success
}
