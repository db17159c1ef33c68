package repository

import (
	"context"
	"database/sql"
	"device-loan-api/internal/model"
	"fmt"
	"time"
)

// AdminRepository stores the admin login audit trail.
type AdminRepository interface {
	RecordLogin(ctx context.Context, login model.AdminLogin) error
	ListLogins(ctx context.Context, limit int) ([]model.AdminLogin, error)
}

type adminRepository struct {
	DB *sql.DB
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db *sql.DB) AdminRepository {
	return &adminRepository{DB: db}
}

func (r *adminRepository) RecordLogin(ctx context.Context, login model.AdminLogin) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO admin_logins (username, succeeded, remote_addr, login_time)
		VALUES ($1, $2, $3, $4)`

	_, err := r.DB.ExecContext(ctx, query, login.Username, login.Succeeded, login.RemoteAddr, login.LoginTime)
	if err != nil {
		return fmt.Errorf("failed to record admin login: %w", err)
	}
	return nil
}

// ListLogins returns the most recent login attempts, newest first.
func (r *adminRepository) ListLogins(ctx context.Context, limit int) ([]model.AdminLogin, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
		SELECT id, username, succeeded, remote_addr, login_time
		FROM admin_logins
		ORDER BY login_time DESC, id DESC
		LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query admin logins: %w", err)
	}
	defer rows.Close()

	logins := []model.AdminLogin{}
	for rows.Next() {
		var l model.AdminLogin
		if err := rows.Scan(&l.ID, &l.Username, &l.Succeeded, &l.RemoteAddr, &l.LoginTime); err != nil {
			return nil, fmt.Errorf("failed to scan admin login: %w", err)
		}
		logins = append(logins, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return logins, nil
}
