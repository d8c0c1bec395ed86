package sandbox

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

const maxJobBytes = 1 << 20

// Overridden in tests so limits never land on the test binary.
var (
	applyCPULimit     = setCPULimit
	applyNoFileWrites = forbidFileWrites
)

// RunWorker executes one job read from stdin and returns the process exit
// code. Program rows go to stdout; fault text goes to stderr.
func RunWorker(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	var job Job
	decoder := json.NewDecoder(io.LimitReader(stdin, maxJobBytes))
	if err := decoder.Decode(&job); err != nil {
		fmt.Fprintf(stderr, "decode job: %v\n", err)
		return exitBadJob
	}
	if err := job.validate(); err != nil {
		fmt.Fprintf(stderr, "invalid job: %v\n", err)
		return exitBadJob
	}

	err := runJob(ctx, job, stdout)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, strings.TrimSpace(err.Error()))
	var programErr *ProgramError
	if errors.As(err, &programErr) {
		return exitProgramFault
	}
	return exitSandboxError
}

func runJob(ctx context.Context, job Job, stdout io.Writer) error {
	if job.CPUSeconds > 0 {
		if err := applyCPULimit(job.CPUSeconds); err != nil {
			return fmt.Errorf("cpu limit: %w", err)
		}
	}

	db, err := duckdb.Open(duckdb.Settings{
		Threads:      job.Threads,
		MemoryLimit:  job.MemoryLimit,
		NoExtensions: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := loadPrivateCopy(ctx, conn, job); err != nil {
		return err
	}
	if err := lockDown(ctx, conn); err != nil {
		return err
	}
	if err := applyNoFileWrites(); err != nil {
		return fmt.Errorf("file size limit: %w", err)
	}
	return execute(ctx, conn, job, stdout)
}

func loadPrivateCopy(ctx context.Context, conn *sql.Conn, job Job) error {
	statement := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_parquet(%s)",
		duckdb.QuoteIdent(job.Table), duckdb.QuoteString(job.Snapshot))
	if _, err := conn.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("load dataset copy: %w", err)
	}
	return nil
}

// lockDown removes filesystem and network reach and freezes the settings so
// the program cannot turn them back on.
func lockDown(ctx context.Context, conn *sql.Conn) error {
	for _, statement := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("%s: %w", statement, err)
		}
	}
	return nil
}

func wrapProgram(program string) string {
	return "SELECT CAST(to_json(q) AS VARCHAR) FROM (\n" + program + "\n) AS q"
}

func execute(ctx context.Context, conn *sql.Conn, job Job, stdout io.Writer) error {
	rows, err := conn.QueryContext(ctx, wrapProgram(duckdb.StripTrailingSemicolons(job.Program)))
	if err != nil {
		return programFault("%s", err.Error())
	}
	defer func() { _ = rows.Close() }()

	out := bufio.NewWriter(stdout)
	written := 0
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			return programFault("%s", err.Error())
		}
		line, err := renderRow(raw.String)
		if err != nil {
			return fmt.Errorf("render row: %w", err)
		}
		written += len(line) + 1
		if job.MaxOutputBytes > 0 && written > job.MaxOutputBytes {
			return programFault("program output exceeded %d bytes", job.MaxOutputBytes)
		}
		if _, err := out.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return programFault("%s", err.Error())
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// renderRow turns a row serialized as a JSON object into one output line. A
// single column is written as its text when it is a string and as JSON
// otherwise; several columns are written as the object itself.
func renderRow(raw string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", err
	}
	if len(fields) != 1 {
		return raw, nil
	}
	for _, value := range fields {
		var text *string
		if err := json.Unmarshal(value, &text); err == nil && text != nil {
			return *text, nil
		}
		return string(value), nil
	}
	return raw, nil
}
