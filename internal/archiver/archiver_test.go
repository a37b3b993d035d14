package archiver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"driftwood/internal/content"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	uploads []string
	fileID  string
	err     error
}

func (f *fakeBlobStore) Upload(_ context.Context, path string, _ models.MediaKind, _, _ string) (string, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, path)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.fileID, nil
}

func newTestArchiver(t *testing.T, blobs BlobStore) (*Archiver, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	scratch := t.TempDir()
	logger := logging.NewLogger()
	a := New(blobs, content.NewStore(db, logger), Config{ScratchDir: scratch}, logger)
	return a, mock, scratch
}

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func testInfo(directURL string) *models.ContentInfo {
	return &models.ContentInfo{
		ID:           "dQw4w9WgXcQ",
		Title:        "Never Gonna Give You Up",
		DurationSecs: 212,
		Channel:      "Rick Astley",
		Views:        1400000000,
		Thumbnail:    "https://img.example/t.jpg",
		DirectURL:    directURL,
		Kind:         models.MediaKindAudio,
	}
}

func TestArchiveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{fileID: "file-abc"}
	a, mock, scratch := newTestArchiver(t, blobs)

	mock.ExpectExec("INSERT INTO content_records").
		WithArgs("dQw4w9WgXcQ", "audio", "file-abc", "Never Gonna Give You Up",
			int64(212), "Rick Astley", int64(1400000000), "https://img.example/t.jpg").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record, err := a.Archive(context.Background(), testInfo(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.DurableRef != "file-abc" {
		t.Fatalf("unexpected durable ref: %s", record.DurableRef)
	}

	if len(blobs.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(blobs.uploads))
	}
	if ext := filepath.Ext(blobs.uploads[0]); ext != ".m4a" {
		t.Fatalf("expected audio scratch extension, got %s", ext)
	}
	if files := scratchFiles(t, scratch); len(files) != 0 {
		t.Fatalf("expected scratch cleanup, found %v", files)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestArchiveDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{fileID: "file-abc"}
	a, _, scratch := newTestArchiver(t, blobs)

	_, err := a.Archive(context.Background(), testInfo(srv.URL))
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if len(blobs.uploads) != 0 {
		t.Fatal("expected no upload after download failure")
	}
	if files := scratchFiles(t, scratch); len(files) != 0 {
		t.Fatalf("expected scratch cleanup, found %v", files)
	}
}

func TestArchiveUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{err: errors.New("chat not found")}
	a, _, scratch := newTestArchiver(t, blobs)

	_, err := a.Archive(context.Background(), testInfo(srv.URL))
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if files := scratchFiles(t, scratch); len(files) != 0 {
		t.Fatalf("expected scratch cleanup, found %v", files)
	}
}

func TestArchiveSucceedsWhenInsertFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{fileID: "file-abc"}
	a, mock, _ := newTestArchiver(t, blobs)

	mock.ExpectExec("INSERT INTO content_records").
		WillReturnError(errors.New("connection reset"))

	record, err := a.Archive(context.Background(), testInfo(srv.URL))
	if err != nil {
		t.Fatalf("expected logical success despite insert failure, got %v", err)
	}
	if record.DurableRef != "file-abc" {
		t.Fatalf("unexpected durable ref: %s", record.DurableRef)
	}
}

func TestConcurrentArchivesCollapse(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{}, 4)
	var served int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served++
		mu.Unlock()
		arrived <- struct{}{}
		<-release
		_, _ = w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	blobs := &fakeBlobStore{fileID: "file-abc"}
	a, mock, _ := newTestArchiver(t, blobs)
	mock.ExpectExec("INSERT INTO content_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Archive(context.Background(), testInfo(srv.URL)); err != nil {
				t.Errorf("archive: %v", err)
			}
		}()
	}

	// Hold the first download open until the other callers have had time
	// to join the flight.
	<-arrived
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if served != 1 {
		t.Fatalf("expected a single download flight, got %d", served)
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("expected a single upload, got %d", len(blobs.uploads))
	}
}
