package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDiagnostics are the Postgres error fields worth logging. pgx and lib/pq
// report the same server fields under different names.
type PGDiagnostics struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

type ErrorDump struct {
	TopMessage string         `json:"top_message"`
	Code       Code           `json:"code,omitempty"`
	Retryable  bool           `json:"retryable,omitempty"`
	Chain      []string       `json:"chain,omitempty"`
	PG         *PGDiagnostics `json:"pg,omitempty"`
}

// Dump flattens an error chain for structured logs.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), PG: pgDiagnostics(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the dump as log fields, leaving out empty Postgres data.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.PG != nil {
		fields["pg_code"] = d.PG.Code
		fields["pg_constraint"] = d.PG.Constraint
		fields["pg_table"] = d.PG.Table
		fields["pg_detail"] = d.PG.Detail
	}
	return fields
}

func pgDiagnostics(err error) *PGDiagnostics {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDiagnostics{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDiagnostics{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
