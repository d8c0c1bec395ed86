package codegen

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

const ProviderGemini = "gemini"

// GeminiGenerator calls the Generative Language generateContent endpoint.
type GeminiGenerator struct {
	httpClient
}

func NewGeminiGenerator(cfg ClientConfig) (*GeminiGenerator, error) {
	client, err := newHTTPClient(ProviderGemini, "gemini-1.5-flash", cfg)
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{httpClient: client}, nil
}

func (g *GeminiGenerator) Provider() string {
	return g.provider
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	CandidateCount int     `json:"candidateCount"`
	Temperature    float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Program, error) {
	options := normalizeOptions(req.Options)
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			CandidateCount: options.CandidateCount,
			Temperature:    options.Temperature,
		},
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}

	var parsed struct {
		Candidates []struct {
			Content      geminiContent `json:"content"`
			FinishReason string        `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	endpoint := g.baseURL + "/v1beta/models/" + url.PathEscape(g.model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	if err := g.postJSON(ctx, endpoint, headers, payload, &parsed); err != nil {
		return Program{}, err
	}
	if len(parsed.Candidates) == 0 {
		reason := "no candidates returned"
		if parsed.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + parsed.PromptFeedback.BlockReason
		}
		return Program{}, &GenerationError{Provider: g.provider, Reason: ReasonEmpty, Err: errors.New(reason)}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return finish(g.provider, g.model, text.String())
}
