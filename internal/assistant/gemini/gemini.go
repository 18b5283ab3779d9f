// Package gemini implements assistant.Model on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-1.5-flash"

	// CallTimeout bounds a single generate call.
	CallTimeout = 30 * time.Second
)

// Model calls a Gemini model with the caller's API key.
// A new client is created per call because the key belongs to the user, not the process.
type Model struct {
	name string
	opts []option.ClientOption
}

// New creates a Model for the named Gemini model. Extra client options are
// appended after the API key (for testing with a custom endpoint).
func New(name string, opts ...option.ClientOption) *Model {
	if strings.TrimSpace(name) == "" {
		name = DefaultModel
	}
	return &Model{name: name, opts: opts}
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.name
}

// Generate sends prompt and returns the concatenated text of the first candidate.
func (m *Model) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", errors.New("gemini: api key not valid: empty key")
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, m.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}
	defer client.Close()

	gm := client.GenerativeModel(m.name)
	gm.ResponseMIMEType = "application/json"
	gm.SetTemperature(0.2)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("gemini: response blocked: %w", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("gemini: request timed out after %s: %w", CallTimeout, err)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	return ResponseText(resp), nil
}

// ResponseText joins the text parts of the first candidate in resp.
// It returns "" when the response carries no text.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
