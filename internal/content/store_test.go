package content

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

var recordColumns = []string{
	"content_id", "media_kind", "durable_ref", "title", "duration_secs",
	"channel", "view_count", "thumbnail_url", "archived_at",
}

func recordRow(kind string) *sqlmock.Rows {
	return sqlmock.NewRows(recordColumns).AddRow(
		"dQw4w9WgXcQ", kind, "file-abc", "Never Gonna Give You Up",
		212, "Rick Astley", 1400000000, "https://img.example/t.jpg",
		time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	)
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, logging.NewLogger()), mock
}

func TestLookupExactKind(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery("SELECT content_id, media_kind").
		WithArgs("dQw4w9WgXcQ", "audio").
		WillReturnRows(recordRow("audio"))

	hit, err := store.Lookup(context.Background(), "dQw4w9WgXcQ", models.MediaKindAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit == nil || hit.Substituted {
		t.Fatalf("expected an exact hit, got %+v", hit)
	}
	if hit.Record.DurableRef != "file-abc" {
		t.Fatalf("unexpected durable ref: %s", hit.Record.DurableRef)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLookupFallsBackToOppositeKind(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery("SELECT content_id, media_kind").
		WithArgs("dQw4w9WgXcQ", "video").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectQuery("SELECT content_id, media_kind").
		WithArgs("dQw4w9WgXcQ", "audio").
		WillReturnRows(recordRow("audio"))

	hit, err := store.Lookup(context.Background(), "dQw4w9WgXcQ", models.MediaKindVideo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit == nil {
		t.Fatal("expected a substituted hit")
	}
	if !hit.Substituted {
		t.Fatal("expected the substitution to be flagged")
	}
	if hit.Record.MediaKind != "audio" {
		t.Fatalf("unexpected kind: %s", hit.Record.MediaKind)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLookupMiss(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectQuery("SELECT content_id, media_kind").
		WithArgs("dQw4w9WgXcQ", "video").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectQuery("SELECT content_id, media_kind").
		WithArgs("dQw4w9WgXcQ", "audio").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	hit, err := store.Lookup(context.Background(), "dQw4w9WgXcQ", models.MediaKindVideo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit != nil {
		t.Fatalf("expected a miss, got %+v", hit)
	}
}

func TestInsert(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec("INSERT INTO content_records").
		WithArgs("dQw4w9WgXcQ", "audio", "file-abc", "Never Gonna Give You Up",
			int64(212), "Rick Astley", int64(1400000000), "https://img.example/t.jpg").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Insert(context.Background(), &models.ContentRecord{
		ContentID:    "dQw4w9WgXcQ",
		MediaKind:    models.MediaKindAudio,
		DurableRef:   "file-abc",
		Title:        "Never Gonna Give You Up",
		DurationSecs: 212,
		Channel:      "Rick Astley",
		ViewCount:    1400000000,
		ThumbnailURL: "https://img.example/t.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
