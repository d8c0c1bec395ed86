package codegen

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Options pin generation to a single deterministic candidate.
type Options struct {
	CandidateCount int
	Temperature    float64
}

func DefaultOptions() Options {
	return Options{CandidateCount: 1, Temperature: 0}
}

type Request struct {
	Prompt            string
	SystemInstruction string
	Options           Options
}

// Program is generated source text with fence markup already removed.
type Program struct {
	Source   string
	Provider string
	Model    string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Program, error)
	Provider() string
}

const (
	ReasonTransport   = "transport"
	ReasonTimeout     = "timeout"
	ReasonStatus      = "status"
	ReasonRateLimited = "rate_limited"
	ReasonDecode      = "decode"
	ReasonEmpty       = "empty"
)

// GenerationError reports any failure of the external model call. Callers
// treat every GenerationError the same way; Reason is for logs and metrics.
type GenerationError struct {
	Provider   string
	Reason     string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation failed (%s, status=%d): %v", e.Provider, e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation failed (%s): %v", e.Provider, e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func transportError(provider string, err error) *GenerationError {
	reason := ReasonTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = ReasonTimeout
	}
	return &GenerationError{Provider: provider, Reason: reason, Err: err}
}

func statusError(provider string, status int, body []byte) *GenerationError {
	reason := ReasonStatus
	if status == 429 {
		reason = ReasonRateLimited
	}
	return &GenerationError{
		Provider:   provider,
		Reason:     reason,
		StatusCode: status,
		Err:        fmt.Errorf("body=%s", truncate(string(body), 512)),
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

// finish strips fences and rejects empty programs.
func finish(provider, model, text string) (Program, error) {
	source := StripFences(text)
	if source == "" {
		return Program{}, &GenerationError{Provider: provider, Reason: ReasonEmpty, Err: errors.New("model returned empty text")}
	}
	return Program{Source: source, Provider: provider, Model: model}, nil
}
