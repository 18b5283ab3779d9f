package assistant

import (
	"errors"
	"strings"
)

// User-facing failures of the AI path. Each is distinct so callers can tell
// the user what to do next.
var (
	ErrNoAPIKey      = errors.New("no AI API key saved (run: dcc apikey set <key>)")
	ErrEmptyInput    = errors.New("nothing to parse: describe the task first")
	ErrEmptyResponse = errors.New("the AI returned an empty response; try again")
	ErrInvalidJSON   = errors.New("the AI response was not valid JSON; try rephrasing your request")
	ErrBlocked       = errors.New("the request was blocked by the AI safety filters; try rephrasing it")
	ErrInvalidKey    = errors.New("the AI API key is invalid; check the key you saved")
	ErrPermission    = errors.New("the AI API key is not authorized; check API access and billing for the key")
	ErrQuota         = errors.New("the AI API quota is exhausted; try again later")
	ErrUpstream      = errors.New("the AI request failed; try again")
)

// upstreamError carries the user-facing sentinel and the original cause.
type upstreamError struct {
	kind  error
	cause error
}

func (e *upstreamError) Error() string   { return e.kind.Error() }
func (e *upstreamError) Unwrap() []error { return []error{e.kind, e.cause} }

// Cause returns the upstream error behind a classified error, or err itself.
func Cause(err error) error {
	var ue *upstreamError
	if errors.As(err, &ue) {
		return ue.cause
	}
	return err
}

// classifyRules maps lower-cased substrings of upstream error text to
// user-facing errors. Order matters: the first matching rule wins.
var classifyRules = []struct {
	substrings []string
	kind       error
}{
	{[]string{"blocked", "safety"}, ErrBlocked},
	{[]string{"api key not valid", "api_key_invalid", "invalid api key", "api key expired"}, ErrInvalidKey},
	{[]string{"permission denied", "permission_denied", "billing", "403"}, ErrPermission},
	{[]string{"quota", "resource exhausted", "resource_exhausted", "429"}, ErrQuota},
}

// ClassifyError maps an error from the model adapter to one of the
// user-facing errors above by matching its text. Errors that are already
// classified pass through unchanged. The match is best-effort; anything
// unrecognised becomes ErrUpstream.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNoAPIKey, ErrEmptyInput, ErrEmptyResponse, ErrInvalidJSON} {
		if errors.Is(err, known) {
			return err
		}
	}
	var ue *upstreamError
	if errors.As(err, &ue) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, s := range rule.substrings {
			if strings.Contains(msg, s) {
				return &upstreamError{kind: rule.kind, cause: err}
			}
		}
	}
	return &upstreamError{kind: ErrUpstream, cause: err}
}
