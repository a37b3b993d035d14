package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// Admission failure reasons. All of them map to 401 at the HTTP edge.
var (
	ErrKeyNotFound   = errors.New("api key not found")
	ErrKeyExpired    = errors.New("api key expired")
	ErrQuotaExceeded = errors.New("daily quota exceeded")
)

// Usage counters roll over at a fixed daily wall-clock boundary rather
// than midnight.
const (
	resetHourUTC   = 18
	resetMinuteUTC = 30
)

// Config represents the configuration for the keystore
type Config struct {
	AdminDailyLimit   int64
	RegularDailyLimit int64
}

// Keystore owns credential storage: admission, usage accounting, and the
// administrative CRUD surface.
type Keystore struct {
	db     *sql.DB
	config Config
	logger logging.Logger
	now    func() time.Time
}

// NewKeystore creates a keystore backed by the given database.
func NewKeystore(db *sql.DB, config Config, logger logging.Logger) *Keystore {
	if config.AdminDailyLimit <= 0 {
		config.AdminDailyLimit = 10000000
	}
	if config.RegularDailyLimit <= 0 {
		config.RegularDailyLimit = 1000
	}
	return &Keystore{db: db, config: config, logger: logger, now: time.Now}
}

// resetBoundary returns the most recent daily reset instant at or before t.
func resetBoundary(t time.Time) time.Time {
	t = t.UTC()
	boundary := time.Date(t.Year(), t.Month(), t.Day(), resetHourUTC, resetMinuteUTC, 0, 0, time.UTC)
	if t.Before(boundary) {
		boundary = boundary.AddDate(0, 0, -1)
	}
	return boundary
}

// Admit validates a credential and enforces its daily quota. The rollover
// is a single conditional UPDATE, so two concurrent requests crossing the
// boundary cannot both skip or double-apply the reset. Usage is not
// incremented here; callers record it after the guarded work succeeds.
func (s *Keystore) Admit(ctx context.Context, keyID string) (*models.Credential, error) {
	now := s.now()
	boundary := resetBoundary(now)

	if _, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET daily_used = 0, last_reset = $2
		WHERE key_id = $1 AND last_reset < $2`,
		keyID, boundary,
	); err != nil {
		return nil, fmt.Errorf("reset check for %s: %w", keyID, err)
	}

	var cred models.Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT key_id, owner, is_admin, daily_limit, daily_used, total_used,
		       created_at, expires_at, last_used, last_reset
		FROM api_keys WHERE key_id = $1`,
		keyID,
	).Scan(
		&cred.KeyID, &cred.Owner, &cred.IsAdmin, &cred.DailyLimit,
		&cred.DailyUsed, &cred.TotalUsed, &cred.CreatedAt, &cred.ExpiresAt,
		&cred.LastUsed, &cred.LastReset,
	)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credential %s: %w", keyID, err)
	}

	if now.After(cred.ExpiresAt) {
		return nil, ErrKeyExpired
	}
	if cred.DailyUsed >= cred.DailyLimit {
		return nil, ErrQuotaExceeded
	}

	return &cred, nil
}

// RecordUsage increments usage counters after a successful guarded
// operation. Best effort: failures are logged, never surfaced, so that
// accounting problems cannot break content serving.
func (s *Keystore) RecordUsage(ctx context.Context, keyID string) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys
		SET daily_used = daily_used + 1, total_used = total_used + 1, last_used = $2
		WHERE key_id = $1`,
		keyID, s.now(),
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"key_id": keyID,
			"error":  err.Error(),
		}).Warn("Failed to record credential usage")
	}
}

// CreateKey mints a new credential. A zero dailyLimit takes the tier
// default; a zero expiryDays means one year.
func (s *Keystore) CreateKey(ctx context.Context, owner string, dailyLimit int64, expiryDays int, isAdmin bool) (*models.Credential, error) {
	if dailyLimit <= 0 {
		if isAdmin {
			dailyLimit = s.config.AdminDailyLimit
		} else {
			dailyLimit = s.config.RegularDailyLimit
		}
	}
	if expiryDays <= 0 {
		expiryDays = 365
	}

	now := s.now()
	cred := &models.Credential{
		KeyID:      "dw_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Owner:      owner,
		IsAdmin:    isAdmin,
		DailyLimit: dailyLimit,
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, expiryDays),
		LastReset:  resetBoundary(now),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys
			(key_id, owner, is_admin, daily_limit, daily_used, total_used,
			 created_at, expires_at, last_reset)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7)`,
		cred.KeyID, cred.Owner, cred.IsAdmin, cred.DailyLimit,
		cred.CreatedAt, cred.ExpiresAt, cred.LastReset,
	)
	if err != nil {
		return nil, fmt.Errorf("create key for %s: %w", owner, err)
	}

	return cred, nil
}

// ListKeys returns every credential, newest first.
func (s *Keystore) ListKeys(ctx context.Context) ([]models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key_id, owner, is_admin, daily_limit, daily_used, total_used,
		       created_at, expires_at, last_used, last_reset
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		var cred models.Credential
		if err := rows.Scan(
			&cred.KeyID, &cred.Owner, &cred.IsAdmin, &cred.DailyLimit,
			&cred.DailyUsed, &cred.TotalUsed, &cred.CreatedAt, &cred.ExpiresAt,
			&cred.LastUsed, &cred.LastReset,
		); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// DeleteKey removes a credential and reports whether it existed.
func (s *Keystore) DeleteKey(ctx context.Context, keyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE key_id = $1`, keyID)
	if err != nil {
		return false, fmt.Errorf("delete key %s: %w", keyID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UsageStats is the aggregate view served by the administrative surface.
type UsageStats struct {
	TotalRequests int64
	TodayRequests int64
	TotalKeys     int64
	ActiveKeys    int64
	ErrorRate     float64
	TopEndpoints  map[string]int64
}

// Stats aggregates request-log and credential counters.
func (s *Keystore) Stats(ctx context.Context) (*UsageStats, error) {
	now := s.now()
	stats := &UsageStats{TopEndpoints: make(map[string]int64)}

	var errored int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE status_code >= 400)
		FROM request_logs`,
		resetBoundary(now),
	).Scan(&stats.TotalRequests, &stats.TodayRequests, &errored)
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	if stats.TotalRequests > 0 {
		stats.ErrorRate = float64(errored) / float64(stats.TotalRequests)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > $1)
		FROM api_keys`,
		now,
	).Scan(&stats.TotalKeys, &stats.ActiveKeys)
	if err != nil {
		return nil, fmt.Errorf("key stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, COUNT(*) AS hits
		FROM request_logs
		GROUP BY endpoint ORDER BY hits DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("endpoint stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var endpoint string
		var hits int64
		if err := rows.Scan(&endpoint, &hits); err != nil {
			return nil, fmt.Errorf("scan endpoint stats: %w", err)
		}
		stats.TopEndpoints[endpoint] = hits
	}
	return stats, rows.Err()
}

// LogRequest appends an observability record. Best effort, same policy as
// RecordUsage.
func (s *Keystore) LogRequest(ctx context.Context, entry *models.RequestLogEntry) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs
			(key_id, endpoint, source_ip, status_code, latency_ms, query_text, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.KeyID, entry.Endpoint, entry.SourceIP, entry.StatusCode,
		entry.Latency.Milliseconds(), entry.QueryText, entry.ErrorText,
	)
	if err != nil {
		s.logger.WithFields(logging.Fields{
			"key_id": entry.KeyID,
			"error":  err.Error(),
		}).Warn("Failed to write request log")
	}
}
