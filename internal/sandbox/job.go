package sandbox

import (
	"fmt"
	"strings"
)

// WorkerArg is the argument that switches the server binary into worker mode.
const WorkerArg = "sandbox-worker"

// Exit codes of the worker process.
const (
	exitOK           = 0
	exitBadJob       = 2
	exitProgramFault = 3
	exitSandboxError = 4
)

// Job is the unit of work sent to a worker on stdin.
type Job struct {
	Program        string `json:"program"`
	Snapshot       string `json:"snapshot"`
	Table          string `json:"table"`
	MemoryLimit    string `json:"memory_limit,omitempty"`
	Threads        int    `json:"threads,omitempty"`
	CPUSeconds     uint64 `json:"cpu_seconds,omitempty"`
	MaxOutputBytes int    `json:"max_output_bytes,omitempty"`
}

func (j Job) validate() error {
	if strings.TrimSpace(j.Program) == "" {
		return fmt.Errorf("program is required")
	}
	if strings.TrimSpace(j.Snapshot) == "" {
		return fmt.Errorf("snapshot path is required")
	}
	if strings.TrimSpace(j.Table) == "" {
		return fmt.Errorf("table name is required")
	}
	return nil
}

// ProgramError is a fault raised by the generated program itself, as opposed
// to a failure of the sandbox machinery.
type ProgramError struct {
	Message string
}

func (e *ProgramError) Error() string {
	return e.Message
}

func programFault(format string, args ...any) error {
	return &ProgramError{Message: fmt.Sprintf(format, args...)}
}
