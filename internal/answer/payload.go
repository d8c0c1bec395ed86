package answer

const (
	ChartBar = "bar"
	ChartPie = "pie"
)

type ChartSpec struct {
	Type   string    `json:"type"`
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// Payload is the only value returned to callers. A missing chart encodes
// as null.
type Payload struct {
	Answer string     `json:"answer"`
	Chart  *ChartSpec `json:"chart"`
}

const (
	MessageNoQuery    = "No query provided."
	MessageNoOutput   = "The query ran but produced no output."
	MessageExecuted   = "Query executed."
	MessageTimedOut   = "The query took too long to run and was stopped."
	MessageInternal   = "An internal error occurred while answering the question."
	messageRuntime    = "Error analyzing data: %s"
	messageNotJSON    = "An error occurred. The AI's response was not valid JSON.\nRaw output: %s"
	messageGeneration = "Sorry, I could not generate an analysis for that question right now (%s). Please try again."
)

func NoQuery() Payload {
	return Payload{Answer: MessageNoQuery}
}
