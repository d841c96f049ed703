// Package numbering allocates human readable document numbers from database counters.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

const (
	requestPrefix = "MPR"
	receiptPrefix = "IGR"
)

// MaxAttempts bounds the collision loop run by callers when a formatted number is
// already taken by a row created before the counter existed.
const MaxAttempts = 10

// Querier interface for database operations.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Next atomically increments the counter stored under key and returns the new value.
// A missing counter is first created at the highest number already stored for its
// key, so databases with imported documents keep allocating past them.
// Run inside the business transaction so a rollback also releases the number.
func Next(ctx context.Context, q Querier, key string) (int64, error) {
	seed, args := seedFor(key)
	_, err := q.Exec(ctx, `
        INSERT INTO sys_sequences (key, current_val)
        SELECT $1, (`+seed+`)
        WHERE NOT EXISTS (SELECT 1 FROM sys_sequences WHERE key = $1)
        ON CONFLICT (key) DO NOTHING
	`, append([]any{key}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("numbering: seed %s: %w", key, err)
	}
	var num int64
	err = q.QueryRow(ctx, `
        UPDATE sys_sequences SET current_val = current_val + 1
        WHERE key = $1
        RETURNING current_val
	`, key).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("numbering: next %s: %w", key, err)
	}
	return num, nil
}

const (
	requestSeed = `SELECT COALESCE(MAX(seq::bigint), 0) FROM (
            SELECT request_code, substring(request_code FROM '^MPR-([0-9]+)') AS seq FROM request_purchases
        ) r WHERE seq IS NOT NULL AND request_code = 'MPR-' || seq || $2`
	receiptSeed = `SELECT COALESCE(MAX(seq::bigint), 0) FROM (
            SELECT number, substring(number FROM '^IGR-([0-9]+)-') AS seq FROM goods_receipts
        ) g WHERE seq IS NOT NULL AND number = 'IGR-' || seq || '-' || $2`
)

// seedFor returns the query computing the highest existing number for key.
func seedFor(key string) (string, []any) {
	prefix, scope, ok := strings.Cut(key, ":")
	if !ok {
		return "0", nil
	}
	switch prefix {
	case requestPrefix:
		return requestSeed, []any{scope}
	case receiptPrefix:
		return receiptSeed, []any{scope}
	default:
		return "0", nil
	}
}

// Source hands out counter values. Workflow transaction repositories implement it by
// calling Next on their transaction.
type Source interface {
	NextSequence(ctx context.Context, key string) (int64, error)
}

// ErrExhausted is returned when MaxAttempts candidates were all taken.
var ErrExhausted = fmt.Errorf("%w: could not allocate a unique document number", shared.ErrConflict)

// Allocate draws counter values for key until format yields a number that taken reports
// as free.
func Allocate(ctx context.Context, src Source, key string, format func(int64) string, taken func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		seq, err := src.NextSequence(ctx, key)
		if err != nil {
			return "", err
		}
		candidate := format(seq)
		exists, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w (%s)", ErrExhausted, key)
}

// RequestKey scopes material purchase request codes per location.
func RequestKey(locationCode string) string {
	return requestPrefix + ":" + locationCode
}

// RequestCode formats MPR-<4-digit-seq><locationCode>.
func RequestCode(seq int64, locationCode string) string {
	return fmt.Sprintf("MPR-%04d%s", seq, locationCode)
}

// ReceiptKey scopes goods receipt numbers per calendar year.
func ReceiptKey(year int) string {
	return receiptPrefix + ":" + strconv.Itoa(year)
}

// ReceiptNumber formats IGR-<4-digit-seq>-<year>.
func ReceiptNumber(seq int64, year int) string {
	return fmt.Sprintf("IGR-%04d-%d", seq, year)
}
