package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"dcc/internal/config"
	"dcc/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "dcc help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, cmd := range DefaultRegistry.All() {
		name := cmd.Name()
		if aliases := cmd.Aliases(); len(aliases) > 0 {
			name += " (" + strings.Join(aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "  %-20s %s\n", name, cmd.Synopsis())
	}
	return exitcode.Success
}

const helpText = `Usage:
  dcc                                                List every task
  dcc list [view flags]                              List tasks in a view
  dcc add [--category <c>] [--priority <p>] [--due <YYYY-MM-DD>] [--ai] <text...>
  dcc create ...                                     Same as add
  dcc parse <text...>                                Preview how the AI reads a note
  dcc done [view flags] <n>                          Mark task n of the view completed
  dcc undone [view flags] <n>                        Mark task n active again
  dcc edit [view flags] <n> <text...>                Replace the text of task n
  dcc rm [view flags] --yes <n>                      Delete task n permanently
  dcc move [view flags] <from> <to>                  Move a task within the view
  dcc watch [view flags]                             Print the view on every change
  dcc categories                                     List categories
  dcc apikey show | set <key> | rm                   Manage the AI API key
  dcc serve [--addr <host:port>]                     Run the web dashboard
  dcc login [common flags]
  dcc logout [common flags]
  dcc whoami
  dcc help
  dcc version

View flags:
  --category, -c <name>   Work, Home, Family, Errands, Finance, Health, Personal or All
  --filter, -f <filter>   all (default), active or completed

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
