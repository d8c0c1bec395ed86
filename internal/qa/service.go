package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/answer"
	"github.com/tabletalk/tabletalk/internal/codegen"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/prompt"
)

type Executor interface {
	Execute(ctx context.Context, program string) answer.Outcome
}

type Config struct {
	Builder   *prompt.Builder
	Generator codegen.Generator
	Executor  Executor
	// Schema is the dataset summary embedded in every prompt.
	Schema string
	Logger *slog.Logger
}

// Service answers questions about the dataset. It holds only read-only state
// and is safe for concurrent use.
type Service struct {
	builder   *prompt.Builder
	generator codegen.Generator
	executor  Executor
	schema    string
	logger    *slog.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Builder == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return nil, fmt.Errorf("dataset schema is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Service{
		builder:   cfg.Builder,
		generator: cfg.Generator,
		executor:  cfg.Executor,
		schema:    cfg.Schema,
		logger:    logger,
	}, nil
}

// Ask answers the last turn using the preceding turns as history. It always
// returns a well-formed payload.
func (s *Service) Ask(ctx context.Context, turns []prompt.Turn) (payload answer.Payload) {
	logger := s.logger.With(observability.RequestAttrs(ctx)...)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("question pipeline panicked", "panic", fmt.Sprint(recovered))
			result := answer.Internal(fmt.Sprint(recovered))
			observability.ObserveChatResult(string(result.Kind))
			payload = result.Payload
		}
	}()

	result := s.answer(ctx, logger, turns)
	observability.ObserveChatResult(string(result.Kind))
	return result.Payload
}

func (s *Service) answer(ctx context.Context, logger *slog.Logger, turns []prompt.Turn) answer.Result {
	history, question, ok := prompt.SplitQuestion(turns)
	if !ok || strings.TrimSpace(question) == "" {
		return answer.Result{Payload: answer.NoQuery(), Kind: answer.KindNoQuery}
	}

	built, err := s.builder.Build(s.schema, prompt.FormatHistory(history), question)
	if err != nil {
		logger.Error("build prompt", "error", err)
		return answer.Internal(err.Error())
	}
	logger.Debug("prompt built", "prompt_version", built.Version, "prompt", built.Text)

	generationStart := time.Now()
	program, err := s.generator.Generate(ctx, codegen.Request{
		Prompt:            built.Text,
		SystemInstruction: built.System,
		Options:           codegen.DefaultOptions(),
	})
	generationElapsed := time.Since(generationStart)
	observability.ObserveGeneration(s.generator.Provider(), err == nil, generationElapsed)
	if err != nil {
		reason := "unavailable"
		var generationErr *codegen.GenerationError
		if errors.As(err, &generationErr) {
			reason = generationErr.Reason
		}
		logger.Error("program generation failed",
			"provider", s.generator.Provider(),
			"reason", reason,
			"error", err,
			"generation_ms", generationElapsed.Milliseconds(),
		)
		return answer.GenerationFailed(reason)
	}

	executionStart := time.Now()
	outcome := s.executor.Execute(ctx, program.Source)
	executionElapsed := time.Since(executionStart)

	result := answer.FromOutcome(outcome)
	attrs := []any{
		"result", string(result.Kind),
		"provider", program.Provider,
		"model", program.Model,
		"prompt_version", built.Version,
		"generation_ms", generationElapsed.Milliseconds(),
		"execution_ms", executionElapsed.Milliseconds(),
	}
	switch {
	case result.Kind.ContractViolation():
		observability.IncrementContractViolation(string(result.Kind))
		logger.Warn("generated program broke the output contract", append(attrs,
			"contract_violation", true,
			"detail", result.Detail,
			"raw_output", outcome.Output,
			"program", outcome.Program,
		)...)
	case result.Kind == answer.KindRuntimeFailure:
		logger.Info("generated program failed", append(attrs, "detail", result.Detail, "program", outcome.Program)...)
	case result.Kind == answer.KindTimedOut:
		logger.Info("generated program timed out", append(attrs, "program", outcome.Program)...)
	default:
		logger.Info("question answered", attrs...)
	}
	return result
}
