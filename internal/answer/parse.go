package answer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind classifies how a payload was produced. Output kinds other than
// KindOK and KindRuntimeFailure/KindTimedOut mark generator-contract
// violations.
type Kind string

const (
	KindOK               Kind = "ok"
	KindRuntimeFailure   Kind = "runtime_failure"
	KindTimedOut         Kind = "timed_out"
	KindOutputEmpty      Kind = "output_empty"
	KindOutputNotJSON    Kind = "output_not_json"
	KindOutputNotObject  Kind = "output_not_object"
	KindChartInvalid     Kind = "chart_invalid"
	KindGenerationFailed Kind = "generation_failed"
	KindNoQuery          Kind = "no_query"
	KindInternal         Kind = "internal_error"
)

// ContractViolation reports whether the generated program broke the output
// contract.
func (k Kind) ContractViolation() bool {
	switch k {
	case KindOutputEmpty, KindOutputNotJSON, KindOutputNotObject, KindChartInvalid:
		return true
	default:
		return false
	}
}

type Result struct {
	Payload Payload
	Kind    Kind
	// Detail explains a degraded result for logs; never shown to users.
	Detail string
}

// FromOutcome maps an execution outcome to a payload. It never fails.
func FromOutcome(outcome Outcome) Result {
	switch outcome.Kind {
	case OutcomeTimedOut:
		return Result{Payload: Payload{Answer: MessageTimedOut}, Kind: KindTimedOut}
	case OutcomeRuntimeFailure:
		return Result{
			Payload: Payload{Answer: fmt.Sprintf(messageRuntime, outcome.Message)},
			Kind:    KindRuntimeFailure,
			Detail:  outcome.Message,
		}
	case OutcomeSuccess:
		return parseOutput(outcome.Output)
	default:
		return Result{
			Payload: Payload{Answer: fmt.Sprintf(messageRuntime, "unknown execution outcome")},
			Kind:    KindInternal,
		}
	}
}

// GenerationFailed renders the apology shown when no program could be
// generated. reason must not contain the prompt.
func GenerationFailed(reason string) Result {
	return Result{
		Payload: Payload{Answer: fmt.Sprintf(messageGeneration, reason)},
		Kind:    KindGenerationFailed,
		Detail:  reason,
	}
}

// Internal is the fallback for failures outside the execution path.
func Internal(detail string) Result {
	return Result{Payload: Payload{Answer: MessageInternal}, Kind: KindInternal, Detail: detail}
}

func parseOutput(captured string) Result {
	output := strings.TrimSpace(captured)
	if output == "" {
		return Result{Payload: Payload{Answer: MessageNoOutput}, Kind: KindOutputEmpty}
	}

	value, err := decodeSingle(output)
	if err != nil {
		return Result{
			Payload: Payload{Answer: fmt.Sprintf(messageNotJSON, output)},
			Kind:    KindOutputNotJSON,
			Detail:  err.Error(),
		}
	}

	object, ok := value.(map[string]any)
	if !ok {
		return Result{Payload: Payload{Answer: stringify(value)}, Kind: KindOutputNotObject}
	}

	payload := Payload{Answer: answerText(object)}
	raw, present := object["chart"]
	if !present || raw == nil {
		return Result{Payload: payload, Kind: KindOK}
	}
	chart, err := ValidateChart(raw)
	if err != nil {
		return Result{Payload: payload, Kind: KindChartInvalid, Detail: err.Error()}
	}
	payload.Chart = chart
	return Result{Payload: payload, Kind: KindOK}
}

// decodeSingle accepts exactly one JSON value; trailing data is an error.
func decodeSingle(text string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	var extra any
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("output contains more than one JSON value")
		}
		return nil, err
	}
	return value, nil
}

func answerText(object map[string]any) string {
	raw, ok := object["answer"]
	if !ok || raw == nil {
		return MessageExecuted
	}
	text := stringify(raw)
	if strings.TrimSpace(text) == "" {
		return MessageExecuted
	}
	return text
}

// stringify returns strings as-is and any other JSON value as compact JSON.
func stringify(value any) string {
	if text, ok := value.(string); ok {
		return text
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return fmt.Sprint(value)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
