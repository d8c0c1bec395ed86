package answer

// OutcomeKind tags an Outcome variant.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRuntimeFailure
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRuntimeFailure:
		return "runtime_failure"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the result of one sandboxed execution. Output is only set for
// OutcomeSuccess; Message only for OutcomeRuntimeFailure.
type Outcome struct {
	Kind    OutcomeKind
	Output  string
	Message string
	Program string
}

func Success(output, program string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Output: output, Program: program}
}

func RuntimeFailure(message, program string) Outcome {
	return Outcome{Kind: OutcomeRuntimeFailure, Message: message, Program: program}
}

func TimedOut(program string) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Program: program}
}
