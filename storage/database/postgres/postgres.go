// Package pgrepos implements the repositories on PostgreSQL with sqlx.
package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/kiongozi/core"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

func quote(ident string) string {
	return strmangle.IdentQuote('"', '"', ident)
}

func quoteAll(idents []string) []string {
	quoted := make([]string, 0, len(idents))
	for _, ident := range idents {
		quoted = append(quoted, quote(ident))
	}
	return quoted
}

// insertQuery builds `INSERT INTO table (cols) VALUES ($1, ...)`.
func insertQuery(table string, cols []string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(quoteAll(cols), ", "), strmangle.Placeholders(true, len(cols), 1, 1))
}

// upsertQuery builds an insert that updates every column but the conflict target and keep ones.
func upsertQuery(table string, cols []string, conflict []string, keep ...string) string {
	skip := make(map[string]bool, len(conflict)+len(keep))
	for _, c := range append(append([]string{}, conflict...), keep...) {
		skip[c] = true
	}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if !skip[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quote(c), quote(c)))
		}
	}
	return fmt.Sprintf(
		"%s ON CONFLICT (%s) DO UPDATE SET %s",
		insertQuery(table, cols), strings.Join(quoteAll(conflict), ", "), strings.Join(sets, ", "))
}

// updateQuery builds `UPDATE table SET "a" = $1, ... WHERE "id" = $n`.
func updateQuery(table string, cols []string) string {
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d",
		quote(table), strmangle.SetParamNames(`"`, `"`, 1, cols), quote("id"), len(cols)+1)
}

func selectQuery(table string, cols []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoteAll(cols), ", "), quote(table))
}

// orderBy renders ordering restricted to the allowed columns, ending with fallback.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if allowed[ord.Field] {
			ord.Field = quote(ord.Field)
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, fallback)
	return " ORDER BY " + strings.Join(orderList, ", ")
}

// trapNoRows maps a "no rows" error to notFound.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// requireAffected returns notFound when res touched no row.
func requireAffected(res sql.Result, notFound error, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

// validUUIDs drops ids Postgres would reject as uuid.
func validUUIDs(ids ...string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullableUUID sends "" as NULL.
func nullableUUID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

// inTx runs fn in a transaction committed when fn returns nil.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
