package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertUnit inserts a unit or updates its tenant, reference and name.
func (d *Database) UpsertUnit(ctx context.Context, u Unit) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_unit", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO units (id, agency_id, external_ref, name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agency_id = excluded.agency_id,
			external_ref = excluded.external_ref,
			name = excluded.name
	`, u.ID, u.AgencyID, nullString(u.ExternalRef), nullString(u.Name))
	return err
}

// GetUnit returns the unit with the given id.
func (d *Database) GetUnit(ctx context.Context, id string) (*Unit, error) {
	return d.getUnit(ctx, "get_unit", "id = ?", id)
}

// GetUnitByExternalRef resolves a unit from the key used in the catalogue
// spreadsheet. The unit id itself is accepted as a fallback.
func (d *Database) GetUnitByExternalRef(ctx context.Context, ref string) (*Unit, error) {
	return d.getUnit(ctx, "get_unit_by_ref", "external_ref = ? OR id = ? ORDER BY external_ref = ? DESC LIMIT 1", ref, ref, ref)
}

func (d *Database) getUnit(ctx context.Context, operation, where string, args ...any) (*Unit, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(operation, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var u Unit
	var ref, name sql.NullString
	err = d.db.QueryRowContext(ctx,
		"SELECT id, agency_id, external_ref, name FROM units WHERE "+where, args...,
	).Scan(&u.ID, &u.AgencyID, &ref, &name)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ExternalRef = ref.String
	u.Name = name.String
	return &u, nil
}

// ListTenants returns the distinct tenant ids that own at least one unit.
func (d *Database) ListTenants(ctx context.Context) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_tenants", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT agency_id FROM units ORDER BY agency_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	err = rows.Err()
	return tenants, err
}
