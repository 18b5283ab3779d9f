package commands

import (
	"errors"
	"fmt"
	"io"

	"dcc/internal/assistant"
	"dcc/internal/exitcode"
	"dcc/internal/service"
)

// reportError prints err the way every command reports failures and returns
// the matching exit code.
func reportError(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return exitcode.AuthError
	case errors.Is(err, assistant.ErrNoAPIKey),
		errors.Is(err, assistant.ErrEmptyInput),
		errors.Is(err, assistant.ErrBlocked),
		errors.Is(err, assistant.ErrInvalidKey),
		errors.Is(err, assistant.ErrInvalidJSON),
		errors.Is(err, assistant.ErrEmptyResponse):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case errors.Is(err, assistant.ErrPermission),
		errors.Is(err, assistant.ErrQuota),
		errors.Is(err, assistant.ErrUpstream):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}
