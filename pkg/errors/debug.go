package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is what WriteError logs for a failed request. It never reaches
// clients.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PG         PGFields `json:"pg,omitempty"`
}

// PGFields is the driver-neutral subset of a Postgres error. Both pgx and
// lib/pq errors can end up in a chain depending on which pool produced them.
type PGFields struct {
	Code       string `json:"code,omitempty"`
	Class      string `json:"class,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SQLSTATE classes the engine reacts to. See Postgres appendix A.
var pgClasses = map[string]string{
	"23": "integrity_constraint_violation",
	"40": "transaction_rollback",
	"53": "insufficient_resources",
	"55": "object_not_in_prerequisite_state",
	"57": "operator_intervention",
	"08": "connection_exception",
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = MetadataFor(typed.Code()).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgFields(err)
	return d
}

func pgFields(err error) PGFields {
	var f PGFields
	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		f = PGFields{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	case errors.As(err, &pqErr):
		f = PGFields{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	default:
		return f
	}
	if len(f.Code) >= 2 {
		f.Class = pgClasses[f.Code[:2]]
	}
	return f
}
