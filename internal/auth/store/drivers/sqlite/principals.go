package sqlite

import (
	"context"
	"database/sql"

	"github.com/saatphere/saatphere/internal/auth/domain"
)

type principalsRepo struct {
	q querier
}

const principalColumns = `id, username, password_hash, authorities, profile_id, enabled, created_at, updated_at`

func (r *principalsRepo) GetByID(ctx context.Context, id int64) (domain.Principal, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = ?`, id)
	return scanPrincipal(row)
}

func (r *principalsRepo) GetByUsername(ctx context.Context, username string) (domain.Principal, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE username = ?`, username)
	return scanPrincipal(row)
}

func (r *principalsRepo) Create(ctx context.Context, p domain.Principal) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO principals (username, password_hash, authorities, profile_id, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		p.Username,
		p.PasswordHash,
		joinAuthorities(p.Authorities),
		nullInt64(p.ProfileID),
		p.Enabled,
	)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (r *principalsRepo) UpdatePasswordHash(ctx context.Context, id int64, newHash string) error {
	return r.exec(ctx, `
		UPDATE principals SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newHash, id)
}

func (r *principalsRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return r.exec(ctx, `
		UPDATE principals SET enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, enabled, id)
}

func (r *principalsRepo) SetProfileID(ctx context.Context, id int64, profileID int64) error {
	return r.exec(ctx, `
		UPDATE principals SET profile_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, profileID, id)
}

func (r *principalsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM principals`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// exec runs a mutation that must touch exactly one row.
func (r *principalsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (domain.Principal, error) {
	var (
		p           domain.Principal
		authorities string
		profileID   sql.NullInt64
	)
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&authorities,
		&profileID,
		&p.Enabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Principal{}, mapNotFound(err)
	}

	p.Authorities = splitAuthorities(authorities)
	if profileID.Valid {
		v := profileID.Int64
		p.ProfileID = &v
	}
	return p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
