package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"driftwood/pkg/clients/youtube"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

type fakeUpstream struct {
	resolveErr  error
	searchID    string
	searchErr   error
	resolvedIDs []string
}

func (f *fakeUpstream) Resolve(_ context.Context, videoID string, kind models.MediaKind) (*models.ContentInfo, error) {
	f.resolvedIDs = append(f.resolvedIDs, videoID)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &models.ContentInfo{
		ID:        videoID,
		Title:     "Resolved " + videoID,
		DirectURL: "https://cdn.example/" + videoID,
		Kind:      kind,
	}, nil
}

func (f *fakeUpstream) SearchTopResult(context.Context, string) (string, error) {
	return f.searchID, f.searchErr
}

func newTestResolver(upstream *fakeUpstream) *Resolver {
	return New(upstream, logging.NewLogger())
}

func TestResolveWatchURL(t *testing.T) {
	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
	}
	for _, u := range urls {
		upstream := &fakeUpstream{}
		info, err := newTestResolver(upstream).Resolve(context.Background(), u, models.MediaKindAudio)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", u, err)
		}
		if info.ID != "dQw4w9WgXcQ" {
			t.Fatalf("%s: extracted %q", u, info.ID)
		}
	}
}

func TestResolveBareID(t *testing.T) {
	upstream := &fakeUpstream{searchID: "should-not-be-used"}
	info, err := newTestResolver(upstream).Resolve(context.Background(), "dQw4w9WgXcQ", models.MediaKindVideo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ID != "dQw4w9WgXcQ" {
		t.Fatalf("expected bare ID passthrough, got %q", info.ID)
	}
}

func TestResolveSearchFallback(t *testing.T) {
	upstream := &fakeUpstream{searchID: "dQw4w9WgXcQ"}
	info, err := newTestResolver(upstream).Resolve(context.Background(), "never gonna give you up", models.MediaKindAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ID != "dQw4w9WgXcQ" {
		t.Fatalf("expected search result, got %q", info.ID)
	}
}

func TestResolveEmptySearch(t *testing.T) {
	upstream := &fakeUpstream{searchID: ""}
	_, err := newTestResolver(upstream).Resolve(context.Background(), "gibberish with spaces", models.MediaKindAudio)
	if !errors.Is(err, ErrNotResolvable) {
		t.Fatalf("expected ErrNotResolvable, got %v", err)
	}
}

func TestResolveMalformedURL(t *testing.T) {
	upstream := &fakeUpstream{}
	_, err := newTestResolver(upstream).Resolve(context.Background(), "https://www.youtube.com/watch?v=short", models.MediaKindAudio)
	if !errors.Is(err, ErrNotResolvable) {
		t.Fatalf("expected ErrNotResolvable, got %v", err)
	}
	if len(upstream.resolvedIDs) != 0 {
		t.Fatalf("expected no upstream call, got %v", upstream.resolvedIDs)
	}
}

func TestResolveNoSuitableStream(t *testing.T) {
	upstream := &fakeUpstream{resolveErr: fmt.Errorf("resolve: %w", youtube.ErrNoMatchingMedia)}
	_, err := newTestResolver(upstream).Resolve(context.Background(), "dQw4w9WgXcQ", models.MediaKindVideo)
	if !errors.Is(err, ErrNoSuitableStream) {
		t.Fatalf("expected ErrNoSuitableStream, got %v", err)
	}
}

func TestResolveUpstreamDown(t *testing.T) {
	upstream := &fakeUpstream{resolveErr: errors.New("connection refused")}
	_, err := newTestResolver(upstream).Resolve(context.Background(), "dQw4w9WgXcQ", models.MediaKindVideo)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}

	upstream = &fakeUpstream{searchErr: errors.New("connection refused")}
	_, err = newTestResolver(upstream).Resolve(context.Background(), "free text", models.MediaKindVideo)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable from search, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected underlying cause in error, got %v", err)
	}
}
