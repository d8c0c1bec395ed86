package answer

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateChart checks a decoded chart candidate. Unknown keys are ignored.
func ValidateChart(raw any) (*ChartSpec, error) {
	object, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chart must be an object, got %T", raw)
	}

	chartType, ok := object["type"].(string)
	if !ok {
		return nil, fmt.Errorf("chart type must be a string")
	}
	if chartType != ChartBar && chartType != ChartPie {
		return nil, fmt.Errorf("chart type %q is not bar or pie", chartType)
	}

	rawLabels, ok := object["labels"].([]any)
	if !ok {
		return nil, fmt.Errorf("chart labels must be an array")
	}
	rawData, ok := object["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("chart data must be an array")
	}
	if len(rawLabels) != len(rawData) {
		return nil, fmt.Errorf("chart has %d labels but %d data points", len(rawLabels), len(rawData))
	}

	labels := make([]string, len(rawLabels))
	for i, value := range rawLabels {
		label, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("chart label %d is not a string", i)
		}
		labels[i] = label
	}
	data := make([]float64, len(rawData))
	for i, value := range rawData {
		number, err := toNumber(value)
		if err != nil {
			return nil, fmt.Errorf("chart data %d: %w", i, err)
		}
		data[i] = number
	}
	return &ChartSpec{Type: chartType, Labels: labels, Data: data}, nil
}

func toNumber(value any) (float64, error) {
	var number float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", v.String())
		}
		number = parsed
	case float64:
		number = v
	default:
		return 0, fmt.Errorf("%T is not a number", value)
	}
	if math.IsInf(number, 0) || math.IsNaN(number) {
		return 0, fmt.Errorf("number out of range")
	}
	return number, nil
}
