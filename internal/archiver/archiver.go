package archiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"driftwood/internal/content"
	"driftwood/pkg/clients"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// Archiver failure kinds. Callers degrade gracefully on either: the
// request that triggered the archive still succeeds, just without a
// durable reference.
var (
	ErrDownloadFailed = errors.New("artifact download failed")
	ErrUploadFailed   = errors.New("artifact upload failed")
)

// BlobStore is the durable upload surface, satisfied by the Telegram
// client and by test fakes.
type BlobStore interface {
	Upload(ctx context.Context, path string, kind models.MediaKind, title, caption string) (string, error)
}

// Config represents the configuration for the archiver
type Config struct {
	DownloadTimeout time.Duration
	ScratchDir      string
}

// Archiver pulls a transient media URL down to scratch space, pushes the
// artifact into the blob store, and appends the resulting durable
// reference to the content store. Concurrent archives of the same
// (content, kind) pair are collapsed into one flight.
type Archiver struct {
	blobs   BlobStore
	store   *content.Store
	client  *http.Client
	config  Config
	logger  logging.Logger
	flights singleflight.Group
}

// New creates an archiver over the given blob store and content store.
func New(blobs BlobStore, store *content.Store, config Config, logger logging.Logger) *Archiver {
	if config.DownloadTimeout == 0 {
		config.DownloadTimeout = 5 * time.Minute
	}
	return &Archiver{
		blobs:  blobs,
		store:  store,
		config: config,
		logger: logger,
		client: &http.Client{
			Transport: clients.DefaultTransport(),
			Timeout:   config.DownloadTimeout,
		},
	}
}

// Archive makes resolved content durable and returns its cache record.
// The ledger insert is best effort: a failed insert loses the cache entry
// but the artifact is already in the blob store, so the archive itself
// still counts as a success.
func (a *Archiver) Archive(ctx context.Context, info *models.ContentInfo) (*models.ContentRecord, error) {
	key := info.ID + "/" + string(info.Kind)
	result, err, shared := a.flights.Do(key, func() (interface{}, error) {
		return a.archive(ctx, info)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		a.logger.WithFields(logging.Fields{"content_id": info.ID, "kind": string(info.Kind)}).
			Debug("Joined in-flight archive")
	}
	return result.(*models.ContentRecord), nil
}

func (a *Archiver) archive(ctx context.Context, info *models.ContentInfo) (*models.ContentRecord, error) {
	start := time.Now()

	path, size, err := a.download(ctx, info)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			a.logger.WithFields(logging.Fields{"path": path, "error": err.Error()}).
				Warn("Failed to remove scratch artifact")
		}
	}()

	caption := fmt.Sprintf("%s | %s", info.Title, info.ID)
	durableRef, err := a.blobs.Upload(ctx, path, info.Kind, info.Title, caption)
	if err != nil {
		a.logger.WithFields(logging.Fields{
			"content_id": info.ID,
			"kind":       string(info.Kind),
			"error":      err.Error(),
		}).Error("Blob upload failed")
		return nil, fmt.Errorf("%s: %w", info.ID, ErrUploadFailed)
	}

	record := &models.ContentRecord{
		ContentID:    info.ID,
		MediaKind:    info.Kind,
		DurableRef:   durableRef,
		Title:        info.Title,
		DurationSecs: info.DurationSecs,
		Channel:      info.Channel,
		ViewCount:    info.Views,
		ThumbnailURL: info.Thumbnail,
		ArchivedAt:   time.Now(),
	}

	if err := a.store.Insert(ctx, record); err != nil {
		a.logger.WithFields(logging.Fields{
			"content_id":  info.ID,
			"kind":        string(info.Kind),
			"durable_ref": durableRef,
			"error":       err.Error(),
		}).Warn("Archived artifact but failed to record it")
	}

	a.logger.WithFields(logging.Fields{
		"content_id": info.ID,
		"kind":       string(info.Kind),
		"bytes":      size,
		"duration":   time.Since(start).String(),
	}).Info("Archived content")

	return record, nil
}

// download streams the transient URL into a scratch file and returns its
// path. The file is removed by the caller on every outcome.
func (a *Archiver) download(ctx context.Context, info *models.ContentInfo) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.DirectURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", info.ID, ErrDownloadFailed)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %v: %w", info.ID, err, ErrDownloadFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%s: transient URL returned %d: %w", info.ID, resp.StatusCode, ErrDownloadFailed)
	}

	scratch, err := os.CreateTemp(a.config.ScratchDir, "driftwood-*"+info.Kind.FileExtension())
	if err != nil {
		return "", 0, fmt.Errorf("%s: scratch file: %w", info.ID, ErrDownloadFailed)
	}

	size, err := io.Copy(scratch, resp.Body)
	closeErr := scratch.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(scratch.Name())
		return "", 0, fmt.Errorf("%s: %v: %w", info.ID, err, ErrDownloadFailed)
	}

	return scratch.Name(), size, nil
}
