// Package exitcode defines exit codes for the CLI.
package exitcode

// Exit codes returned by every command.
const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task number, AI input problems).
	UserError = 1

	// AuthError indicates an auth or configuration error.
	AuthError = 2

	// BackendError indicates a store, API, or network error.
	BackendError = 3
)
