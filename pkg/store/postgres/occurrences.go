package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/period"
)

const occurrenceColumns = `id, household_id, rule_kind, rule_id, period, name, expected_amount, due_date, status, snooze_until, created_at, updated_at`

// InsertOccurrenceIfAbsent relies on the (rule_kind, rule_id, period) unique
// index, so concurrent sweeps cannot both create the same occurrence.
func (s *Store) InsertOccurrenceIfAbsent(ctx context.Context, occ *api.Occurrence) (bool, error) {
	id := occ.ID
	if id == "" {
		id = uuid.NewString()
	}

	var insertedID string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO occurrences (`+occurrenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (rule_kind, rule_id, period) DO NOTHING
		RETURNING id
	`,
		id,
		occ.HouseholdID,
		string(occ.Rule.Kind),
		occ.Rule.ID,
		occ.Period,
		occ.Name,
		occ.ExpectedAmount,
		occ.DueDate,
		string(occ.Status),
		occ.SnoozeUntil,
		occ.CreatedAt,
		occ.UpdatedAt,
	).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapWriteErr("inserting occurrence", err)
	}

	occ.ID = insertedID
	return true, nil
}

// GetOccurrence returns the household's occurrence with the given ID.
func (s *Store) GetOccurrence(ctx context.Context, householdID, id string) (*api.Occurrence, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1 AND household_id = $2`,
		id, householdID,
	)
	occ, err := scanOccurrence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("occurrence %s: %w", id, api.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting occurrence: %w", err)
	}
	return occ, nil
}

// ListOccurrences returns matching occurrences ordered by due date.
func (s *Store) ListOccurrences(ctx context.Context, filter api.OccurrenceFilter) ([]api.Occurrence, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.HouseholdID != "" {
		add("household_id = $%d", filter.HouseholdID)
	}
	if filter.Kind != "" {
		add("rule_kind = $%d", string(filter.Kind))
	}
	if filter.Rule != nil {
		add("rule_kind = $%d", string(filter.Rule.Kind))
		add("rule_id = $%d", filter.Rule.ID)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(filter.Statuses))
	}
	if !filter.DueBefore.IsZero() {
		add("due_date < $%d::date", period.DateIn(filter.DueBefore, time.UTC))
	}
	if !filter.CreatedFrom.IsZero() {
		add("created_at >= $%d", filter.CreatedFrom)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}

	query := `SELECT ` + occurrenceColumns + ` FROM occurrences`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY due_date, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing occurrences: %w", err)
	}
	defer rows.Close()

	var out []api.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning occurrence: %w", err)
		}
		out = append(out, *occ)
	}
	return out, rows.Err()
}

// UpdateOccurrence applies u as a single conditional UPDATE. When u carries an
// expense or a balance change, they share the transaction so everything lands
// or nothing does.
func (s *Store) UpdateOccurrence(ctx context.Context, u api.OccurrenceUpdate) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var updatedID string
	err = tx.QueryRow(ctx, `
		UPDATE occurrences SET
			status = COALESCE(NULLIF($4::text, ''), status),
			snooze_until = CASE
				WHEN $5::timestamptz IS NOT NULL THEN $5::timestamptz
				WHEN $4::text <> '' AND $4::text <> 'snoozed' THEN NULL
				ELSE snooze_until
			END,
			expected_amount = COALESCE($6::numeric, expected_amount),
			updated_at = $7
		WHERE id = $1 AND household_id = $2 AND status = ANY($3)
		RETURNING id
	`,
		u.ID,
		u.HouseholdID,
		statusStrings(u.From),
		string(u.Status),
		u.SnoozeUntil,
		u.ExpectedAmount,
		u.UpdatedAt,
	).Scan(&updatedID)

	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM occurrences WHERE id = $1 AND household_id = $2)`,
			u.ID, u.HouseholdID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("checking occurrence: %w", err)
		}
		if !exists {
			return false, fmt.Errorf("occurrence %s: %w", u.ID, api.ErrNotFound)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("updating occurrence: %w", err)
	}

	if u.Expense != nil {
		if err := insertExpense(ctx, tx, u.Expense); err != nil {
			return false, err
		}
	}
	if u.Balance != nil {
		if _, err := applyBalance(ctx, tx, *u.Balance); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

// ArchiveOccurrences archives confirmed and skipped occurrences last updated before cutoff.
func (s *Store) ArchiveOccurrences(ctx context.Context, cutoff, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET status = 'archived', updated_at = $2
		WHERE status IN ('confirmed', 'skipped') AND updated_at < $1
	`, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("archiving occurrences: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanOccurrence(row pgx.Row) (*api.Occurrence, error) {
	var (
		occ          api.Occurrence
		kind, status string
	)
	err := row.Scan(
		&occ.ID,
		&occ.HouseholdID,
		&kind,
		&occ.Rule.ID,
		&occ.Period,
		&occ.Name,
		&occ.ExpectedAmount,
		&occ.DueDate,
		&status,
		&occ.SnoozeUntil,
		&occ.CreatedAt,
		&occ.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	occ.Rule.Kind = api.Kind(kind)
	occ.Status = api.Status(status)
	return &occ, nil
}

func statusStrings(statuses []api.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
