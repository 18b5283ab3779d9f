package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"dcc/internal/config"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

func init() {
	Register(&CategoriesCmd{})
}

// CategoriesCmd prints the fixed category set.
type CategoriesCmd struct{}

func (c *CategoriesCmd) Name() string      { return "categories" }
func (c *CategoriesCmd) Aliases() []string { return nil }
func (c *CategoriesCmd) Synopsis() string  { return "List task categories" }
func (c *CategoriesCmd) Usage() string     { return "dcc categories" }
func (c *CategoriesCmd) NeedsAuth() bool   { return false }

func (c *CategoriesCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *CategoriesCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	for _, cat := range service.Categories() {
		if cat == service.DefaultCategory {
			fmt.Fprintf(out, "%s [default]\n", cat)
			continue
		}
		fmt.Fprintln(out, cat)
	}
	return exitcode.Success
}
