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
	"dcc/internal/tasksync"
)

func init() {
	Register(&WatchCmd{})
}

// WatchCmd prints the view again every time it changes, until interrupted.
type WatchCmd struct {
	view viewFlags
}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return nil }
func (c *WatchCmd) Synopsis() string  { return "Show a live view of tasks" }
func (c *WatchCmd) Usage() string {
	return "dcc watch [--category <category>] [--filter all|active|completed]"
}
func (c *WatchCmd) NeedsAuth() bool { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	q, err := c.view.query(env.User.ID)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	model := tasksync.New(env.Store, env.Log)
	model.Subscribe(ctx, q.UserID, q.Category, q.Filter, func(tasks []service.Task) {
		output.FormatViewHeader(out, q.Category, q.Filter)
		output.FormatTasks(out, tasks, false)
	})

	<-ctx.Done()
	model.Unsubscribe()
	return exitcode.Success
}
