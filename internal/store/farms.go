package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"digiprofile/api/internal/geo"
	"digiprofile/api/internal/wardstat"
)

const farmColumns = `id, name, ward_number, farm_type, ownership_type, owner_name, owner_contact,
	description, total_area_hectares, has_irrigation, irrigation_source, soil_type,
	main_crops, livestock, geometry, verified, created_at, updated_at`

func scanFarm(row interface{ Scan(...any) error }) (wardstat.Farm, error) {
	var f wardstat.Farm
	var crops, livestock, geometry []byte
	err := row.Scan(&f.ID, &f.Name, &f.WardNumber, &f.FarmType, &f.OwnershipType, &f.OwnerName, &f.OwnerContact,
		&f.Description, &f.TotalAreaHectares, &f.HasIrrigation, &f.IrrigationSource, &f.SoilType,
		&crops, &livestock, &geometry, &f.Verified, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return wardstat.Farm{}, err
	}
	if err := json.Unmarshal(crops, &f.MainCrops); err != nil {
		return wardstat.Farm{}, fmt.Errorf("decode main_crops: %w", err)
	}
	if err := json.Unmarshal(livestock, &f.Livestock); err != nil {
		return wardstat.Farm{}, fmt.Errorf("decode livestock: %w", err)
	}
	if len(geometry) > 0 {
		var g geo.Geometry
		if err := json.Unmarshal(geometry, &g); err != nil {
			return wardstat.Farm{}, fmt.Errorf("decode geometry: %w", err)
		}
		f.Geometry = &g
	}
	return f, nil
}

func farmArgs(f wardstat.Farm) ([]any, error) {
	crops, err := json.Marshal(nonNil(f.MainCrops))
	if err != nil {
		return nil, err
	}
	livestock, err := json.Marshal(nonNil(f.Livestock))
	if err != nil {
		return nil, err
	}
	var geometry any
	if f.Geometry != nil {
		raw, err := json.Marshal(f.Geometry)
		if err != nil {
			return nil, err
		}
		geometry = string(raw)
	}
	return []any{
		f.ID, f.Name, f.WardNumber, f.FarmType, f.OwnershipType, f.OwnerName, f.OwnerContact,
		f.Description, f.TotalAreaHectares, f.HasIrrigation, f.IrrigationSource, f.SoilType,
		string(crops), string(livestock), geometry, f.Verified,
	}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func farmWhere(filter FarmFilter) (string, []any) {
	where := []string{"TRUE"}
	var args []any
	if filter.Ward > 0 {
		args = append(args, filter.Ward)
		where = append(where, fmt.Sprintf("ward_number = $%d", len(args)))
	}
	if filter.FarmType != "" {
		args = append(args, filter.FarmType)
		where = append(where, fmt.Sprintf("farm_type = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR owner_name ILIKE $%d OR description ILIKE $%d OR main_crops::text ILIKE $%d)", n, n, n, n))
	}
	if filter.IDs != nil {
		args = append(args, filter.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	return strings.Join(where, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListFarms returns one page of farms matching filter plus the total match count.
func (s *PostgresStore) ListFarms(ctx context.Context, filter FarmFilter) ([]wardstat.Farm, int, error) {
	where, args := farmWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM farms WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count farms: %w", err)
	}

	query := `SELECT ` + farmColumns + ` FROM farms WHERE ` + where + ` ORDER BY ward_number ASC, name ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list farms: %w", err)
	}
	defer rows.Close()

	farms := make([]wardstat.Farm, 0)
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan farm: %w", err)
		}
		farms = append(farms, f)
	}
	return farms, total, rows.Err()
}

func (s *PostgresStore) GetFarm(ctx context.Context, id string) (wardstat.Farm, error) {
	f, err := scanFarm(s.db.QueryRowContext(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = $1`, id))
	if err != nil {
		return wardstat.Farm{}, fmt.Errorf("get farm: %w", translate(err))
	}
	return f, nil
}

func (s *PostgresStore) InsertFarm(ctx context.Context, f wardstat.Farm, actorID string) (wardstat.Farm, error) {
	args, err := farmArgs(f)
	if err != nil {
		return wardstat.Farm{}, fmt.Errorf("encode farm: %w", err)
	}
	args = append(args, nullable(actorID))
	out, err := scanFarm(s.db.QueryRowContext(ctx, `
		INSERT INTO farms (id, name, ward_number, farm_type, ownership_type, owner_name, owner_contact,
			description, total_area_hectares, has_irrigation, irrigation_source, soil_type,
			main_crops, livestock, geometry, verified, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb, $15::jsonb, $16, $17)
		RETURNING `+farmColumns, args...))
	if err != nil {
		return wardstat.Farm{}, fmt.Errorf("insert farm: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) UpdateFarm(ctx context.Context, f wardstat.Farm) (wardstat.Farm, error) {
	args, err := farmArgs(f)
	if err != nil {
		return wardstat.Farm{}, fmt.Errorf("encode farm: %w", err)
	}
	out, err := scanFarm(s.db.QueryRowContext(ctx, `
		UPDATE farms SET name=$2, ward_number=$3, farm_type=$4, ownership_type=$5, owner_name=$6,
			owner_contact=$7, description=$8, total_area_hectares=$9, has_irrigation=$10,
			irrigation_source=$11, soil_type=$12, main_crops=$13::jsonb, livestock=$14::jsonb,
			geometry=$15::jsonb, verified=$16, updated_at=NOW()
		WHERE id=$1
		RETURNING `+farmColumns, args...))
	if err != nil {
		return wardstat.Farm{}, fmt.Errorf("update farm: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) DeleteFarm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM farms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete farm: %w", err)
	}
	return expectRow(res)
}

const mediaColumns = `id, farm_id, object_key, content_type, caption, is_primary, size_bytes, created_at`

func scanMedia(row interface{ Scan(...any) error }) (wardstat.FarmMedia, error) {
	var m wardstat.FarmMedia
	err := row.Scan(&m.ID, &m.FarmID, &m.ObjectKey, &m.ContentType, &m.Caption, &m.IsPrimary, &m.SizeBytes, &m.CreatedAt)
	return m, err
}

// InsertFarmMedia records an uploaded object. A primary item demotes the
// farm's previous primary in the same transaction.
func (s *PostgresStore) InsertFarmMedia(ctx context.Context, m wardstat.FarmMedia) (wardstat.FarmMedia, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wardstat.FarmMedia{}, fmt.Errorf("begin media tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if m.IsPrimary {
		if _, err := tx.ExecContext(ctx, `UPDATE farm_media SET is_primary = FALSE WHERE farm_id = $1 AND is_primary`, m.FarmID); err != nil {
			return wardstat.FarmMedia{}, fmt.Errorf("demote primary media: %w", err)
		}
	}
	out, err := scanMedia(tx.QueryRowContext(ctx, `
		INSERT INTO farm_media (id, farm_id, object_key, content_type, caption, is_primary, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+mediaColumns,
		m.ID, m.FarmID, m.ObjectKey, m.ContentType, m.Caption, m.IsPrimary, m.SizeBytes))
	if err != nil {
		return wardstat.FarmMedia{}, fmt.Errorf("insert media: %w", translate(err))
	}
	if err := tx.Commit(); err != nil {
		return wardstat.FarmMedia{}, fmt.Errorf("commit media: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListFarmMedia(ctx context.Context, farmID string) ([]wardstat.FarmMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM farm_media WHERE farm_id = $1 ORDER BY is_primary DESC, created_at ASC
	`, farmID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	out := make([]wardstat.FarmMedia, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetFarmMedia(ctx context.Context, farmID, mediaID string) (wardstat.FarmMedia, error) {
	m, err := scanMedia(s.db.QueryRowContext(ctx, `
		SELECT `+mediaColumns+` FROM farm_media WHERE farm_id = $1 AND id = $2
	`, farmID, mediaID))
	if err != nil {
		return wardstat.FarmMedia{}, fmt.Errorf("get media: %w", translate(err))
	}
	return m, nil
}

func (s *PostgresStore) DeleteFarmMedia(ctx context.Context, farmID, mediaID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM farm_media WHERE farm_id = $1 AND id = $2`, farmID, mediaID)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return expectRow(res)
}
