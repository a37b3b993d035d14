package content

import (
	"context"
	"database/sql"
	"fmt"

	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// Store is the append-only archive ledger. Records are never updated or
// deleted; lookups always take the newest row for a content ID.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore creates a content store backed by the given database.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Hit is a cache lookup result. Substituted is set when the record carries
// the opposite media kind from the one requested.
type Hit struct {
	Record      *models.ContentRecord
	Substituted bool
}

const lookupQuery = `
	SELECT content_id, media_kind, durable_ref, title, duration_secs,
	       channel, view_count, thumbnail_url, archived_at
	FROM content_records
	WHERE content_id = $1 AND media_kind = $2
	ORDER BY archived_at DESC
	LIMIT 1`

// Lookup finds the newest archived record for a content ID. It tries the
// requested kind first and falls back to the opposite kind, flagging the
// substitution so callers can surface it.
func (s *Store) Lookup(ctx context.Context, contentID string, kind models.MediaKind) (*Hit, error) {
	record, err := s.lookupKind(ctx, contentID, kind)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return &Hit{Record: record}, nil
	}

	record, err = s.lookupKind(ctx, contentID, kind.Other())
	if err != nil {
		return nil, err
	}
	if record != nil {
		return &Hit{Record: record, Substituted: true}, nil
	}

	return nil, nil
}

func (s *Store) lookupKind(ctx context.Context, contentID string, kind models.MediaKind) (*models.ContentRecord, error) {
	var record models.ContentRecord
	err := s.db.QueryRowContext(ctx, lookupQuery, contentID, string(kind)).Scan(
		&record.ContentID, &record.MediaKind, &record.DurableRef,
		&record.Title, &record.DurationSecs, &record.Channel,
		&record.ViewCount, &record.ThumbnailURL, &record.ArchivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", contentID, kind, err)
	}
	return &record, nil
}

// Insert appends a new archive record. Existing records for the same
// content are left in place; the newer row wins on lookup.
func (s *Store) Insert(ctx context.Context, record *models.ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_records
			(content_id, media_kind, durable_ref, title, duration_secs,
			 channel, view_count, thumbnail_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ContentID, string(record.MediaKind), record.DurableRef,
		record.Title, record.DurationSecs, record.Channel,
		record.ViewCount, record.ThumbnailURL,
	)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", record.ContentID, record.MediaKind, err)
	}
	return nil
}
