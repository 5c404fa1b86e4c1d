package store

import (
	"context"
	"fmt"
	"strings"

	"digiprofile/api/internal/wardstat"
)

const recordColumns = `id, dataset, ward_number, category, value, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (wardstat.Record, error) {
	var r wardstat.Record
	err := row.Scan(&r.ID, &r.Dataset, &r.WardNumber, &r.Category, &r.Value, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// ListRecords returns the records of a dataset ordered by ward then category.
func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]wardstat.Record, error) {
	where := []string{"dataset = $1"}
	args := []any{filter.Dataset}
	if filter.Ward > 0 {
		args = append(args, filter.Ward)
		where = append(where, fmt.Sprintf("ward_number = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM ward_records
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY ward_number ASC, category ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]wardstat.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRecord(ctx context.Context, dataset, id string) (wardstat.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM ward_records WHERE dataset = $1 AND id = $2
	`, dataset, id))
	if err != nil {
		return wardstat.Record{}, fmt.Errorf("get record: %w", translate(err))
	}
	return r, nil
}

// InsertRecord writes a new record; a taken (ward, category) slot yields ErrDuplicate.
func (s *PostgresStore) InsertRecord(ctx context.Context, r wardstat.Record, actorID string) (wardstat.Record, error) {
	out, err := scanRecord(s.db.QueryRowContext(ctx, `
		INSERT INTO ward_records (id, dataset, ward_number, category, value, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+recordColumns,
		r.ID, r.Dataset, r.WardNumber, r.Category, r.Value, nullable(actorID)))
	if err != nil {
		return wardstat.Record{}, fmt.Errorf("insert record: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, r wardstat.Record, actorID string) (wardstat.Record, error) {
	out, err := scanRecord(s.db.QueryRowContext(ctx, `
		UPDATE ward_records
		SET ward_number = $3, category = $4, value = $5, updated_by = $6, updated_at = NOW()
		WHERE dataset = $1 AND id = $2
		RETURNING `+recordColumns,
		r.Dataset, r.ID, r.WardNumber, r.Category, r.Value, nullable(actorID)))
	if err != nil {
		return wardstat.Record{}, fmt.Errorf("update record: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, dataset, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ward_records WHERE dataset = $1 AND id = $2`, dataset, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return expectRow(res)
}

func (s *PostgresStore) DeleteRecordByKey(ctx context.Context, dataset string, key wardstat.Key) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ward_records WHERE dataset = $1 AND ward_number = $2 AND category = $3
	`, dataset, key.WardNumber, key.Category)
	if err != nil {
		return fmt.Errorf("delete record by key: %w", err)
	}
	return expectRow(res)
}

// UpsertRecords writes every record in one transaction, replacing the value
// of slots that already exist. Either all rows land or none do.
func (s *PostgresStore) UpsertRecords(ctx context.Context, dataset string, records []wardstat.Record, actorID string) (ImportResult, error) {
	var result ImportResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ward_records (id, dataset, ward_number, category, value, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (dataset, ward_number, category)
		DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = NOW()
		RETURNING (xmax = 0)
	`)
	if err != nil {
		return result, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var inserted bool
		if err := stmt.QueryRowContext(ctx, r.ID, dataset, r.WardNumber, r.Category, r.Value, nullable(actorID)).Scan(&inserted); err != nil {
			return ImportResult{}, fmt.Errorf("upsert ward %d %s: %w", r.WardNumber, r.Category, err)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

// CountRecords returns the number of records per dataset.
func (s *PostgresStore) CountRecords(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dataset, COUNT(*) FROM ward_records GROUP BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var dataset string
		var n int
		if err := rows.Scan(&dataset, &n); err != nil {
			return nil, err
		}
		out[dataset] = n
	}
	return out, rows.Err()
}
