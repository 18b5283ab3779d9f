package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/tasksync"
)

func init() {
	Register(&MoveCmd{})
}

// MoveCmd moves a task to another place in its view, like drag and drop.
type MoveCmd struct {
	view viewFlags
}

// SetView sets the category and filter task numbers refer to (for testing).
func (c *MoveCmd) SetView(category, filter string) {
	c.view = viewFlags{category: category, filter: filter}
}

func (c *MoveCmd) Name() string      { return "move" }
func (c *MoveCmd) Aliases() []string { return []string{"mv"} }
func (c *MoveCmd) Synopsis() string  { return "Reorder a task within a view" }
func (c *MoveCmd) Usage() string {
	return "dcc move [--category <category>] [--filter <filter>] <from> <to>"
}
func (c *MoveCmd) NeedsAuth() bool { return true }

func (c *MoveCmd) RegisterFlags(fs *flag.FlagSet) {
	c.view.register(fs)
}

func (c *MoveCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) < 2 {
		fmt.Fprintln(errOut, "error: two task numbers required: <from> <to>")
		return exitcode.UserError
	}
	from, err := parseTaskNumber(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	to, err := parseTaskNumber(args[1])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	q, err := c.view.query(env.User.ID)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	model := tasksync.New(env.Store, env.Log)
	defer model.Close()

	model.Subscribe(ctx, q.UserID, q.Category, q.Filter, nil)
	if err := model.WaitReady(ctx); err != nil {
		return reportError(errOut, err)
	}

	n := len(model.Tasks())
	for _, num := range []int{from, to} {
		if num > n {
			fmt.Fprintf(errOut, "error: %v\n", errOutOfRange(num))
			return exitcode.UserError
		}
	}

	if err := model.Reorder(ctx, from-1, to-1); err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
