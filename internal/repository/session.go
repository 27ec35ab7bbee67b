package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/communa/backend/internal/db"
	"github.com/communa/backend/internal/domain"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type sessionRepository struct {
	db *sqlx.DB
}

func newSessionRepository(db *sqlx.DB) *sessionRepository {
	return &sessionRepository{
		db: db,
	}
}

const sessionColumns = `
	id, user_id, device_id, device_fingerprint,
	device_name, device_class, platform, browser, os, ip, user_agent, location,
	access_token, refresh_token,
	is_active, expires_at, created_at, last_refresh, last_active
`

// Create inserts a new session row. Two unique constraints can fire here:
// the token-value indexes and the one-active-row-per-(user,device) index.
// Both surface as ErrDuplicateEntry so the service can retry its lookup
// instead of failing the login.
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
	INSERT INTO session
	(id, user_id, device_id, device_fingerprint,
	 device_name, device_class, platform, browser, os, ip, user_agent, location,
	 access_token, refresh_token, is_active, expires_at, last_refresh, last_active)
	VALUES(uuid_to_bin(?), uuid_to_bin(?), uuid_to_bin(?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.DeviceFingerprint,
		session.DeviceName,
		session.DeviceClass,
		session.Platform,
		session.Browser,
		session.OS,
		session.IP,
		session.UserAgent,
		session.Location,
		session.AccessToken,
		session.RefreshToken,
		session.IsActive,
		session.ExpiresAt,
		session.LastRefresh,
		session.LastActive,
	)

	if err != nil {
		//nolint:errorlint
		if mysqlError, ok := err.(*mysql.MySQLError); ok && mysqlError.Number == db.DuplicateEntry {
			return domain.ErrDuplicateEntry
		}
		return fmt.Errorf("db insert session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected failed: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrNoRowsAffected
	}

	return nil
}

// GetByID returns the row regardless of liveness, so callers can log
// revoked vs expired before rejecting.
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session WHERE id = uuid_to_bin(?);`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session by id failed: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) GetByAccessToken(ctx context.Context, token string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE access_token = ? AND is_active = TRUE AND expires_at > now();`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session by access token failed: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) GetByRefreshToken(ctx context.Context, token string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE refresh_token = ? AND is_active = TRUE AND expires_at > now();`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session by refresh token failed: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) GetActiveByUserAndDevice(ctx context.Context, userID, deviceID uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE user_id = uuid_to_bin(?) AND device_id = uuid_to_bin(?)
	  AND is_active = TRUE AND expires_at > now();`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, userID, deviceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session by user and device failed: %w", err)
	}
	return &session, nil
}

// GetActiveByFingerprint lets a repeat login from a known physical device
// land on its existing device identity before any device id is presented.
func (r *sessionRepository) GetActiveByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE user_id = uuid_to_bin(?) AND device_fingerprint = ?
	  AND is_active = TRUE AND expires_at > now()
	ORDER BY last_active DESC LIMIT 1;`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, userID, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select session by fingerprint failed: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE user_id = uuid_to_bin(?) AND is_active = TRUE AND expires_at > now()
	ORDER BY last_active DESC;`

	var sessions []domain.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("select sessions by user failed: %w", err)
	}
	return sessions, nil
}

func (r *sessionRepository) ListActiveByDevice(ctx context.Context, deviceID uuid.UUID) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session
	WHERE device_id = uuid_to_bin(?) AND is_active = TRUE AND expires_at > now()
	ORDER BY last_active DESC;`

	var sessions []domain.Session
	if err := r.db.SelectContext(ctx, &sessions, query, deviceID); err != nil {
		return nil, fmt.Errorf("select sessions by device failed: %w", err)
	}
	return sessions, nil
}

// UpdateTokens rotates token values in place. The row keeps its identity;
// concurrent rotations are last-write-wins, either result is valid.
func (r *sessionRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string) error {
	const query = `
	UPDATE session SET access_token = ?, refresh_token = ?, last_refresh = now()
	WHERE id = uuid_to_bin(?) AND is_active = TRUE;
	`
	result, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, id)
	if err != nil {
		return fmt.Errorf("update session tokens failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected failed: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrNoRowsAffected
	}

	return nil
}

func (r *sessionRepository) Touch(ctx context.Context, id uuid.UUID, ip, userAgent string) error {
	const query = `
	UPDATE session SET last_active = now(), ip = ?, user_agent = ?
	WHERE id = uuid_to_bin(?);
	`
	if _, err := r.db.ExecContext(ctx, query, ip, userAgent, id); err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}

func (r *sessionRepository) ExtendExpiry(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	const query = `
	UPDATE session SET expires_at = ? WHERE id = uuid_to_bin(?) AND is_active = TRUE;
	`
	if _, err := r.db.ExecContext(ctx, query, expiresAt, id); err != nil {
		return fmt.Errorf("extend session expiry failed: %w", err)
	}
	return nil
}

func (r *sessionRepository) UpdateDeviceName(ctx context.Context, id uuid.UUID, name string) error {
	const query = `
	UPDATE session SET device_name = ? WHERE id = uuid_to_bin(?);
	`
	if _, err := r.db.ExecContext(ctx, query, name, id); err != nil {
		return fmt.Errorf("update session device name failed: %w", err)
	}
	return nil
}

// Deactivate is idempotent: flipping an already-inactive row affects zero
// rows and that is a success, not an error.
func (r *sessionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	const query = `
	UPDATE session SET is_active = FALSE WHERE id = uuid_to_bin(?);
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deactivate session failed: %w", err)
	}
	return nil
}

func (r *sessionRepository) DeactivateByUser(ctx context.Context, userID uuid.UUID, exclude *uuid.UUID) (int64, error) {
	query := `UPDATE session SET is_active = FALSE WHERE user_id = uuid_to_bin(?) AND is_active = TRUE`
	args := []interface{}{userID}
	if exclude != nil {
		query += ` AND id != uuid_to_bin(?)`
		args = append(args, *exclude)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions by user failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected failed: %w", err)
	}
	return affected, nil
}

func (r *sessionRepository) DeactivateByDevice(ctx context.Context, deviceID uuid.UUID, exclude *uuid.UUID) (int64, error) {
	query := `UPDATE session SET is_active = FALSE WHERE device_id = uuid_to_bin(?) AND is_active = TRUE`
	args := []interface{}{deviceID}
	if exclude != nil {
		query += ` AND id != uuid_to_bin(?)`
		args = append(args, *exclude)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions by device failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected failed: %w", err)
	}
	return affected, nil
}

// DeleteExpiredBefore physically removes rows that no longer authenticate
// and are past the retention cutoff. Revoked-but-recent rows survive so the
// "your devices" history stays useful.
func (r *sessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
	DELETE FROM session WHERE (is_active = FALSE OR expires_at < now()) AND expires_at < ?;
	`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected failed: %w", err)
	}
	return affected, nil
}
