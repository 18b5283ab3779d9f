package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"dcc/internal/assistant"
	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	category string
	priority string
	due      string
	ai       bool
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "dcc add [--category <category>] [--priority high|medium|low] [--due YYYY-MM-DD] [--ai] <text...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.category, "category", "", "")
	fs.StringVar(&c.category, "c", "", "")
	fs.StringVar(&c.priority, "priority", "", "")
	fs.StringVar(&c.priority, "p", "", "")
	fs.StringVar(&c.due, "due", "", "")
	fs.BoolVar(&c.ai, "ai", false, "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	// Blank text never reaches the store.
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		fmt.Fprintln(errOut, "error: task text required")
		return exitcode.UserError
	}

	nt := service.NewTask{
		Text:     text,
		Category: service.DefaultCategory,
		Priority: service.DefaultPriority,
	}

	if c.ai {
		res, err := parseWithAI(ctx, env, text)
		if err != nil {
			return reportError(errOut, err)
		}
		if t := res.Text(); t != "" {
			nt.Text = t
		}
		if res.Category != "" {
			nt.Category = res.Category
		}
		if d, ok := res.Due(); ok {
			nt.DueDate = &d
		}
	}

	// Explicit flags win over AI suggestions.
	if c.category != "" {
		cat, ok := service.ParseCategory(c.category)
		if !ok || cat == service.CategoryAll {
			fmt.Fprintf(errOut, "error: invalid category: %s\n", c.category)
			return exitcode.UserError
		}
		nt.Category = cat
	}
	if c.priority != "" {
		p, ok := service.ParsePriority(c.priority)
		if !ok {
			fmt.Fprintf(errOut, "error: invalid priority: %s\n", c.priority)
			return exitcode.UserError
		}
		nt.Priority = p
	}
	if c.due != "" {
		d, err := time.Parse(service.DateLayout, c.due)
		if err != nil {
			fmt.Fprintf(errOut, "error: invalid due date: %s (want YYYY-MM-DD)\n", c.due)
			return exitcode.UserError
		}
		nt.DueDate = &d
	}

	nt.Position = env.now().UnixMilli()

	task, err := env.Store.CreateTask(ctx, env.User.ID, nt)
	if err != nil {
		env.logf("create task failed: %v", err)
		return reportError(errOut, err)
	}
	env.logf("created task %s in %s", task.ID, task.Category)

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// parseWithAI loads the user's API key and asks the assistant to parse text.
func parseWithAI(ctx context.Context, env *Env, text string) (assistant.Result, error) {
	key, ok, err := env.Store.GetAPIKey(ctx, env.User.ID)
	if err != nil {
		return assistant.Result{}, err
	}
	if !ok {
		return assistant.Result{}, assistant.ErrNoAPIKey
	}
	if env.Assistant == nil {
		return assistant.Result{}, errors.New("AI assistant is not configured")
	}
	return env.Assistant.Parse(ctx, key, text)
}
