package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"github.com/adamscao/shotserver/internal/config"
	"github.com/adamscao/shotserver/internal/db"
	"github.com/adamscao/shotserver/internal/db/repository"
	"github.com/adamscao/shotserver/internal/filestore"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/metrics"
	"github.com/adamscao/shotserver/internal/models"
	"github.com/adamscao/shotserver/internal/policy"
	"github.com/adamscao/shotserver/internal/service"
	"github.com/adamscao/shotserver/internal/session"
)

const (
	adminPassword = "Adm1nP@ssw0rd!!"
	alicePassword = "Str0ngP@ssw0rd!"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*httptest.Server
	files    *filestore.Store
	accounts *service.Accounts
	admin    *models.User
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Environment = config.EnvDevelopment
	cfg.Server.StaticDir = ""
	cfg.Session.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Session.Secure = false
	cfg.Security.BcryptCost = bcrypt.MinCost
	if mutate != nil {
		mutate(cfg)
	}

	database, err := db.New(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	files, err := filestore.New(afero.NewMemMapFs(), "/uploads", filestore.Options{MaxUploadSize: cfg.Storage.MaxUploadSize})
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}

	log := zerolog.Nop()
	m := metrics.New()
	users := repository.NewUserRepository(database.DB)
	requests := repository.NewRegistrationRepository(database.DB)
	lockout := guard.NewLockoutGuard(
		guard.WithMaxAttempts(cfg.Security.MaxFailedAttempts),
		guard.WithWindow(cfg.GetLockoutWindow()),
	)
	validator := policy.NewValidator()
	auditor := service.NewAuditor(repository.NewAuditRepository(database.DB), log)
	accounts := service.NewAccounts(users, requests, files, lockout, validator, auditor, cfg.Security.BcryptCost, log)

	admin, _, err := accounts.BootstrapAdmin(context.Background(), service.BootstrapInput{
		Username: "root",
		Password: adminPassword,
	})
	if err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}

	srv, err := NewServer(Deps{
		Config: cfg,
		Users:  users,
		Sessions: session.NewManager(session.Options{
			SecretKey: []byte(cfg.Session.SecretKey),
			Name:      cfg.Session.Name,
			MaxAge:    cfg.GetSessionMaxAge(),
			Secure:    cfg.Session.Secure,
		}),
		Limiter:       guard.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.GetRateLimitWindow()),
		Files:         files,
		Auditor:       auditor,
		Authenticator: service.NewAuthenticator(users, lockout, auditor, m, log),
		Registration:  service.NewRegistration(users, requests, files, validator, auditor, cfg.Security.BcryptCost, log),
		Accounts:      accounts,
		Metrics:       m,
		Log:           log,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, files: files, accounts: accounts, admin: admin}
}

// client returns an HTTP client with its own cookie jar
func (s *testServer) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (s *testServer) do(t *testing.T, c *http.Client, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, c *http.Client, username, password string) {
	t.Helper()
	status, body := s.do(t, c, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status = %d, body = %v", username, status, body)
	}
}

func (s *testServer) upload(t *testing.T, c *http.Client, folder string, data []byte) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "shot.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write(data)
	if folder != "" {
		_ = mw.WriteField("folder", folder)
	}
	_ = mw.Close()

	resp, err := c.Post(s.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// registerAndApprove walks username through registration and admin approval
func (s *testServer) registerAndApprove(t *testing.T, admin *http.Client, username string) {
	t.Helper()
	anon := s.client(t)

	status, body := s.do(t, anon, http.MethodPost, "/register", map[string]string{
		"username": username,
		"password": alicePassword,
		"email":    username + "@x.com",
	})
	if status != http.StatusOK || body["status"] != models.RequestPending {
		t.Fatalf("register: status = %d, body = %v", status, body)
	}
	requestID := int64(body["request_id"].(float64))

	// Not approved yet
	status, body = s.do(t, anon, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": alicePassword,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("login before approval: status = %d, body = %v", status, body)
	}

	status, body = s.do(t, admin, http.MethodPost, fmt.Sprintf("/api/admin/registration-requests/%d/approve", requestID), nil)
	if status != http.StatusOK {
		t.Fatalf("approve: status = %d, body = %v", status, body)
	}

	status, _ = s.do(t, admin, http.MethodPost, fmt.Sprintf("/admin/approve-request/%d", requestID), nil)
	if status == http.StatusOK {
		t.Fatal("request approved twice")
	}
}

func TestEndToEndUploadFlow(t *testing.T) {
	s := newTestServer(t, nil)

	admin := s.client(t)
	s.login(t, admin, "root", adminPassword)
	s.registerAndApprove(t, admin, "alice_01")

	alice := s.client(t)
	s.login(t, alice, "alice_01", alicePassword)

	status, body := s.do(t, alice, http.MethodGet, "/check-auth", nil)
	if status != http.StatusOK || body["authenticated"] != true {
		t.Fatalf("check-auth: status = %d, body = %v", status, body)
	}

	status, stored := s.upload(t, alice, "", pngBytes(t))
	if status != http.StatusOK {
		t.Fatalf("upload: status = %d, body = %v", status, stored)
	}
	today := s.files.DefaultFolder()
	if stored["folder"] != today {
		t.Errorf("folder = %v, want %s", stored["folder"], today)
	}
	filename, _ := stored["filename"].(string)
	if !strings.HasPrefix(filename, "screenshot_") || !strings.HasSuffix(filename, ".png") {
		t.Errorf("filename = %q", filename)
	}

	status, body = s.do(t, alice, http.MethodGet, "/folders", nil)
	if status != http.StatusOK {
		t.Fatalf("folders: status = %d", status)
	}
	folders := body["folders"].([]any)
	if len(folders) != 2 {
		t.Fatalf("folders = %v, want all plus %s", folders, today)
	}
	all := folders[0].(map[string]any)
	if all["name"] != filestore.AllFolder || all["is_permanent"] != true {
		t.Errorf("first folder = %v, want permanent all", all)
	}
	if shots := all["screenshots"].([]any); len(shots) != 1 {
		t.Errorf("all holds %d screenshots, want 1", len(shots))
	}
	if folders[1].(map[string]any)["name"] != today {
		t.Errorf("second folder = %v, want %s", folders[1], today)
	}

	imagePath := stored["path"].(string)
	resp, err := alice.Get(s.URL + imagePath)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("image: status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	// Administrators may read any sandbox
	resp, err = admin.Get(s.URL + imagePath)
	if err != nil {
		t.Fatalf("admin get image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin image status = %d, want 200", resp.StatusCode)
	}

	// Other users may not
	s.registerAndApprove(t, admin, "bob_02")
	bob := s.client(t)
	s.login(t, bob, "bob_02", alicePassword)
	resp, err = bob.Get(s.URL + imagePath)
	if err != nil {
		t.Fatalf("bob get image: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign image status = %d, want 403", resp.StatusCode)
	}

	status, _ = s.do(t, alice, http.MethodGet, "/logout", nil)
	if status != http.StatusOK {
		t.Fatalf("logout: status = %d", status)
	}
	status, _ = s.do(t, alice, http.MethodGet, "/folders", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("folders after logout: status = %d, want 401", status)
	}
}

func TestFolderOperations(t *testing.T) {
	s := newTestServer(t, nil)

	admin := s.client(t)
	s.login(t, admin, "root", adminPassword)

	status, body := s.do(t, admin, http.MethodPost, "/folder", map[string]string{"name": "work"})
	if status != http.StatusOK {
		t.Fatalf("create folder: status = %d, body = %v", status, body)
	}
	status, _ = s.do(t, admin, http.MethodPost, "/folder", map[string]string{"name": "../etc"})
	if status != http.StatusBadRequest {
		t.Errorf("traversal folder: status = %d, want 400", status)
	}

	status, stored := s.upload(t, admin, "work", pngBytes(t))
	if status != http.StatusOK {
		t.Fatalf("upload: status = %d, body = %v", status, stored)
	}

	status, body = s.do(t, admin, http.MethodPost, "/move_screenshot", map[string]string{
		"source_folder": "all",
		"target_folder": "archive",
		"filename":      stored["filename"].(string),
		"operation":     "copy",
	})
	if status != http.StatusNotFound {
		t.Errorf("copy to missing folder: status = %d, want 404 (body %v)", status, body)
	}

	s.do(t, admin, http.MethodPost, "/folder", map[string]string{"name": "archive"})
	status, body = s.do(t, admin, http.MethodPost, "/move_screenshot", map[string]string{
		"source_folder": "all",
		"target_folder": "archive",
		"filename":      stored["filename"].(string),
		"operation":     "copy",
	})
	if status != http.StatusOK {
		t.Fatalf("copy: status = %d, body = %v", status, body)
	}

	status, _ = s.do(t, admin, http.MethodPost, "/folder/archive/star", nil)
	if status != http.StatusOK {
		t.Errorf("star: status = %d", status)
	}
	status, _ = s.do(t, admin, http.MethodPost, "/folder/all/unstar", nil)
	if status != http.StatusForbidden {
		t.Errorf("unstar all: status = %d, want 403", status)
	}
	status, _ = s.do(t, admin, http.MethodDelete, "/folder/all", nil)
	if status != http.StatusForbidden {
		t.Errorf("delete all: status = %d, want 403", status)
	}

	status, _ = s.do(t, admin, http.MethodDelete, "/delete/work/"+stored["filename"].(string), nil)
	if status != http.StatusOK {
		t.Errorf("delete screenshot: status = %d", status)
	}
	status, _ = s.do(t, admin, http.MethodDelete, "/folder/archive", nil)
	if status != http.StatusOK {
		t.Errorf("delete folder: status = %d", status)
	}

	status, _ = s.upload(t, admin, "", []byte("not an image at all"))
	if status != http.StatusBadRequest {
		t.Errorf("non-image upload: status = %d, want 400", status)
	}
}

func TestAdminSurface(t *testing.T) {
	s := newTestServer(t, nil)

	admin := s.client(t)
	s.login(t, admin, "root", adminPassword)
	s.registerAndApprove(t, admin, "alice_01")

	alice := s.client(t)
	s.login(t, alice, "alice_01", alicePassword)

	status, _ := s.do(t, alice, http.MethodGet, "/api/admin/users", nil)
	if status != http.StatusForbidden {
		t.Errorf("non-admin users list: status = %d, want 403", status)
	}
	status, _ = s.do(t, s.client(t), http.MethodGet, "/api/admin/users", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("anonymous users list: status = %d, want 401", status)
	}

	status, body := s.do(t, admin, http.MethodPut, fmt.Sprintf("/api/admin/users/%d/status", s.admin.ID),
		map[string]string{"status": models.StatusDisabled})
	if status != http.StatusForbidden {
		t.Errorf("disable last admin: status = %d, want 403 (body %v)", status, body)
	}

	status, body = s.do(t, admin, http.MethodGet, "/api/admin/statistics", nil)
	if status != http.StatusOK {
		t.Fatalf("statistics: status = %d", status)
	}
	if body["total_users"] != float64(2) || body["admin_users"] != float64(1) {
		t.Errorf("statistics = %v", body)
	}

	status, body = s.do(t, admin, http.MethodGet, "/api/admin/audit-log?action="+models.ActionLogin, nil)
	if status != http.StatusOK {
		t.Fatalf("audit log: status = %d, body = %v", status, body)
	}

	var aliceID int64
	users, err := s.accounts.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	for _, u := range users {
		if u.Username == "alice_01" {
			aliceID = u.ID
		}
	}

	status, _ = s.do(t, admin, http.MethodPost, fmt.Sprintf("/admin/users/%d/toggle-access", aliceID), nil)
	if status != http.StatusOK {
		t.Fatalf("toggle access: status = %d", status)
	}

	// A disabled account loses its live session
	status, _ = s.do(t, alice, http.MethodGet, "/folders", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("disabled user: status = %d, want 401", status)
	}
	status, body = s.do(t, alice, http.MethodPost, "/login", map[string]string{
		"username": "alice_01",
		"password": alicePassword,
	})
	if status != http.StatusUnauthorized || body["error"] != "ACCOUNT_DISABLED" {
		t.Errorf("disabled login: status = %d, body = %v", status, body)
	}
}

func TestLoginLockout(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.MaxFailedAttempts = 3
	})
	c := s.client(t)

	for i := 0; i < 3; i++ {
		status, _ := s.do(t, c, http.MethodPost, "/login", map[string]string{
			"username": "root",
			"password": "wrong",
		})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, status)
		}
	}

	// Correct credentials are refused once the IP is blacklisted
	status, _ := s.do(t, c, http.MethodPost, "/login", map[string]string{
		"username": "root",
		"password": adminPassword,
	})
	if status != http.StatusUnauthorized {
		t.Errorf("blacklisted login: status = %d, want 401", status)
	}

	if blocked := s.accounts.BlockedIPs(); len(blocked) != 1 {
		t.Errorf("blocked = %v, want one entry", blocked)
	}
}

func TestRateLimitedServer(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerWindow = 5
	})
	c := s.client(t)

	for i := 0; i < 5; i++ {
		if status, _ := s.do(t, c, http.MethodGet, "/health", nil); status != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, status)
		}
	}

	resp, err := c.Get(s.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.client(t)

	s.do(t, c, http.MethodGet, "/health", nil)

	resp, err := c.Get(s.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "shotserver_http_requests_total") {
		t.Errorf("metrics output missing request counter")
	}
}
