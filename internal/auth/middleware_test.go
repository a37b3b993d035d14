package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"driftwood/pkg/logging"
)

func newGatedRouter(store *Keystore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/content", RequireAPIKey(store, logging.NewLogger()), func(c *gin.Context) {
		cred := CredentialFromContext(c)
		c.JSON(http.StatusOK, gin.H{"owner": cred.Owner})
	})
	return router
}

func TestRequireAPIKeyMissing(t *testing.T) {
	now := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	store, _ := newTestKeystore(t, now)
	router := newGatedRouter(store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/content?query=x", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAPIKeyQuotaExceeded(t *testing.T) {
	now := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	store, mock := newTestKeystore(t, now)
	router := newGatedRouter(store)

	mock.ExpectExec("UPDATE api_keys SET daily_used = 0").
		WithArgs("dw_abc", resetBoundary(now)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT key_id, owner, is_admin").
		WithArgs("dw_abc").
		WillReturnRows(credentialRow(now, 1000, 1000, now.AddDate(0, 0, 30)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/content?query=x&api_key=dw_abc", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAPIKeyHeaderAndAccounting(t *testing.T) {
	now := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)
	store, mock := newTestKeystore(t, now)
	router := newGatedRouter(store)

	mock.ExpectExec("UPDATE api_keys SET daily_used = 0").
		WithArgs("dw_abc", resetBoundary(now)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT key_id, owner, is_admin").
		WithArgs("dw_abc").
		WillReturnRows(credentialRow(now, 5, 1000, now.AddDate(0, 0, 30)))
	mock.ExpectExec("UPDATE api_keys").
		WithArgs("dw_abc", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO request_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/content?query=x", nil)
	req.Header.Set("X-API-Key", "dw_abc")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Usage recording and request logging run off the request path.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := mock.ExpectationsWereMet(); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("accounting writes never landed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRequireAdminToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin/stats", RequireAdminToken("s3cret", logging.NewLogger()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", w.Code)
	}
}
