package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

// DefaultExpiry is how long a playback session stays redeemable.
const DefaultExpiry = 24 * time.Hour

// Broker hands out short-lived opaque tokens that map to direct media URLs.
// Sessions live in process memory only; a restart invalidates them all,
// which is acceptable because the URLs they wrap expire upstream anyway.
type Broker struct {
	mu       sync.Mutex
	sessions map[string]*models.StreamSession
	expiry   time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// NewBroker creates a session broker with the given expiry horizon.
func NewBroker(expiry time.Duration, logger logging.Logger) *Broker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Broker{
		sessions: make(map[string]*models.StreamSession),
		expiry:   expiry,
		logger:   logger,
		now:      time.Now,
	}
}

// Create mints a fresh session for a target URL. It never fails and never
// reuses tokens; every request gets its own session even for the same
// content.
func (b *Broker) Create(contentID, targetURL string) *models.StreamSession {
	now := b.now()
	session := &models.StreamSession{
		SessionID: uuid.New().String(),
		ContentID: contentID,
		TargetURL: targetURL,
		CreatedAt: now,
		ExpiresAt: now.Add(b.expiry),
	}

	b.mu.Lock()
	b.sessions[session.SessionID] = session
	b.mu.Unlock()

	return session
}

// Resolve returns the session for a token, or false if the token is unknown
// or expired. Expired sessions are deleted on touch.
func (b *Broker) Resolve(sessionID string) (*models.StreamSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if b.now().After(session.ExpiresAt) {
		delete(b.sessions, sessionID)
		return nil, false
	}
	return session, true
}

// Sweep removes every expired session and reports how many were dropped.
func (b *Broker) Sweep() int {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, session := range b.sessions {
		if now.After(session.ExpiresAt) {
			delete(b.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions, expired or not.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// StartSweeper runs Sweep on an interval until the context is cancelled.
func (b *Broker) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := b.Sweep(); removed > 0 {
					b.logger.WithFields(logging.Fields{
						"removed":   removed,
						"remaining": b.Len(),
					}).Debug("Swept expired stream sessions")
				}
			}
		}
	}()
}
