package commands_test

import (
	"flag"
	"io"

	"dcc/internal/commands"
)

// newFlagSet registers cmd's flags on a fresh FlagSet, as the dispatcher does.
func newFlagSet(cmd commands.Command) *flag.FlagSet {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.RegisterFlags(fs)
	return fs
}
