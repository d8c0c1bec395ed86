package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/policy"
	"github.com/tabletalk/tabletalk/internal/query/duckdb"
)

// Checker parses programs with DuckDB and evaluates the capability policy.
// Parsing never executes anything, so it runs in the host.
type Checker struct {
	db      *sql.DB
	policy  *policy.Engine
	dataset string
}

func NewChecker(ctx context.Context, policyContent, dataset string) (*Checker, error) {
	engine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		return nil, err
	}
	db, err := duckdb.Open(duckdb.Settings{Threads: 1, NoExtensions: true})
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Checker{db: db, policy: engine, dataset: dataset}, nil
}

func (c *Checker) Close() error {
	return c.db.Close()
}

// Check returns a *ProgramError when program is not an allowed query.
func (c *Checker) Check(ctx context.Context, program string) error {
	// json_serialize_sql only accepts a constant, so the program is inlined as a
	// string literal. Parser errors come back in the document, not as err.
	var serialized string
	statement := "SELECT CAST(json_serialize_sql(" + duckdb.QuoteString(program) + ") AS VARCHAR)"
	if err := c.db.QueryRowContext(ctx, statement).Scan(&serialized); err != nil {
		return fmt.Errorf("serialize program: %w", err)
	}
	input, err := policy.FromSerializedSQL([]byte(serialized), c.dataset)
	if err != nil {
		var parseErr *policy.ParseError
		if errors.As(err, &parseErr) {
			return programFault("%s", parseErr.Error())
		}
		return err
	}
	violations, err := c.policy.Violations(ctx, input)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return programFault("program rejected: %s", strings.Join(violations, "; "))
	}
	return nil
}
