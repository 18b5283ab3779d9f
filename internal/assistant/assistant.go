// Package assistant turns free-form text into suggested task fields using a
// hosted generative model.
package assistant

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"dcc/internal/service"
)

// Model generates a completion for prompt using the caller's API key.
type Model interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// Assistant parses task descriptions through a Model.
type Assistant struct {
	model Model
	log   *log.Logger
	now   func() time.Time
}

// New creates an Assistant. A nil logger discards output.
func New(model Model, logger *log.Logger) *Assistant {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Assistant{model: model, log: logger, now: time.Now}
}

// SetClock overrides the clock used for "today" in prompts (for testing).
func (a *Assistant) SetClock(now func() time.Time) {
	a.now = now
}

// Parse asks the model to extract task fields from input.
// The returned error is always one of the package's sentinel errors, possibly
// wrapping the upstream cause.
func (a *Assistant) Parse(ctx context.Context, apiKey, input string) (Result, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Result{}, ErrNoAPIKey
	}
	if strings.TrimSpace(input) == "" {
		return Result{}, ErrEmptyInput
	}

	prompt := BuildPrompt(input, a.now(), service.Categories())
	raw, err := a.model.Generate(ctx, apiKey, prompt)
	if err != nil {
		classified := ClassifyError(err)
		a.log.Printf("ai request failed: %v (cause: %v)", classified, Cause(classified))
		return Result{}, classified
	}

	res, err := Validate(raw)
	if err != nil {
		a.log.Printf("ai response rejected: %v (raw=%q)", err, raw)
		return Result{}, err
	}
	return res, nil
}
