package codegen

import (
	"context"
	"errors"
)

const ProviderOpenAI = "openai-compatible"

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	httpClient
}

func NewOpenAIGenerator(cfg ClientConfig) (*OpenAIGenerator, error) {
	client, err := newHTTPClient(ProviderOpenAI, "gpt-5", cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{httpClient: client}, nil
}

func (g *OpenAIGenerator) Provider() string {
	return g.provider
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Program, error) {
	payload := buildOpenAIPayload(g.model, req)

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	if err := g.postJSON(ctx, g.baseURL+"/v1/chat/completions", headers, payload, &parsed); err != nil {
		return Program{}, err
	}
	if len(parsed.Choices) == 0 {
		return Program{}, &GenerationError{Provider: g.provider, Reason: ReasonEmpty, Err: errors.New("empty chat completion choices")}
	}
	return finish(g.provider, g.model, parsed.Choices[0].Message.Content)
}

func buildOpenAIPayload(model string, req Request) map[string]any {
	messages := make([]map[string]string, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	options := normalizeOptions(req.Options)
	return map[string]any{
		"model":       model,
		"messages":    messages,
		"n":           options.CandidateCount,
		"temperature": options.Temperature,
	}
}

func normalizeOptions(options Options) Options {
	if options.CandidateCount <= 0 {
		options.CandidateCount = 1
	}
	if options.Temperature < 0 {
		options.Temperature = 0
	}
	return options
}
