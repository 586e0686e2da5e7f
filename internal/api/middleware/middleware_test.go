package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func okHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func TestRateLimit(t *testing.T) {
	limiter := guard.NewRateLimiter(3, time.Minute)

	r := gin.New()
	r.Use(CORS(nil))
	r.Use(RateLimit(limiter, nil, "/static/"))
	r.GET("/ping", okHandler)
	r.GET("/static/app.js", okHandler)

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "203.0.113.7:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		if w := do(http.MethodGet, "/ping"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := do(http.MethodGet, "/ping")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" || ra == "0" {
		t.Errorf("Retry-After = %q, want a positive number of seconds", ra)
	}
	if !strings.Contains(w.Body.String(), "rate_limited") {
		t.Errorf("body = %s, want rate_limited code", w.Body.String())
	}

	if w := do(http.MethodOptions, "/ping"); w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if w := do(http.MethodGet, "/static/app.js"); w.Code != http.StatusOK {
		t.Errorf("static status = %d, want 200", w.Code)
	}

	// Other clients keep their own budget
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "198.51.100.1:4000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("second client status = %d, want 200", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/ping", okHandler)

	tests := []struct {
		name       string
		origin     string
		wantHeader string
	}{
		{"allowed origin", "https://app.example.com", "https://app.example.com"},
		{"unknown origin", "https://evil.example.com", ""},
		{"no origin", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
			if tt.wantHeader != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("credentials not allowed for configured origin")
			}
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	sessions := session.NewManager(session.Options{SecretKey: []byte("0123456789abcdef0123456789abcdef")})
	users := fakeUsers{
		1: {ID: 1, Username: "root", IsAdmin: true, IsApproved: true, Status: models.StatusActive},
		2: {ID: 2, Username: "alice", IsApproved: true, Status: models.StatusActive},
		3: {ID: 3, Username: "bob", IsApproved: true, Status: models.StatusDisabled},
	}

	r := gin.New()
	authed := r.Group("/")
	authed.Use(RequireAuthenticated(sessions, users))
	authed.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})
	admin := authed.Group("/admin")
	admin.Use(RequireAdmin())
	admin.GET("/panel", okHandler)

	cookieFor := func(userID int64) *http.Cookie {
		w := httptest.NewRecorder()
		if err := sessions.Establish(w, httptest.NewRequest(http.MethodGet, "/", nil), userID); err != nil {
			t.Fatalf("Establish: %v", err)
		}
		cookies := w.Result().Cookies()
		if len(cookies) == 0 {
			t.Fatal("no session cookie issued")
		}
		return cookies[0]
	}

	tests := []struct {
		name   string
		userID int64
		path   string
		want   int
	}{
		{"no session", 0, "/me", http.StatusUnauthorized},
		{"active user", 2, "/me", http.StatusOK},
		{"disabled user", 3, "/me", http.StatusUnauthorized},
		{"deleted user", 9, "/me", http.StatusUnauthorized},
		{"non-admin on admin route", 2, "/admin/panel", http.StatusForbidden},
		{"admin on admin route", 1, "/admin/panel", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.userID != 0 {
				req.AddCookie(cookieFor(tt.userID))
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && len(w.Result().Cookies()) == 0 {
				t.Error("session was not refreshed")
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Errorf("panic value leaked to client: %s", w.Body.String())
	}
}

func TestLoggerRequestID(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zerolog.Nop()))
	r.GET("/ping", func(c *gin.Context) {
		if zerolog.Ctx(c.Request.Context()) == nil {
			t.Error("no logger on request context")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("no request id generated")
	}
}
