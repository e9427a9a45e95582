package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"askallery/internal/config"
	"askallery/internal/models"
	"askallery/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

// MockMailer records outgoing mail.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type testEnv struct {
	server *Server
	app    *fiber.App
	db     *gorm.DB
	oracle *testutil.FakeOracle
	mailer *MockMailer
	cfg    *config.Config
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Env:                       "test",
		Port:                      "0",
		AppURL:                    "http://askallery.test",
		JWTSecret:                 testSecret,
		AccessTokenTTLMinutes:     5,
		VerificationTokenTTLHours: 48,
		DBDriver:                  "sqlite",
		UploadDir:                 t.TempDir(),
		ImageMaxUploadSizeMB:      2,
		ImageJPEGQuality:          70,
		ImageMaxDimension:         256,
		GateOracleURL:             "http://oracle.invalid/search",
		GateAttempts:              3,
		GateRetryDelayMS:          1,
		GateTimeoutSeconds:        2,
		GateMandatoryKeywords:     "ASUKA",
		GateForbiddenKeywords:     "WWE,LUCHADORA,WRESTLER",
		AllowedOrigins:            "*",
	}
}

func newTestEnv(t *testing.T, rdb *redis.Client) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	db := testutil.NewSQLiteDB(t)
	oracle := testutil.NewFakeOracle("ASUKA LANGLEY SORYU")
	mailer := &MockMailer{}

	s, err := NewServerWithDeps(cfg, db, rdb, WithOracle(oracle), WithMailer(mailer))
	require.NoError(t, err)

	return &testEnv{
		server: s,
		app:    s.App(),
		db:     db,
		oracle: oracle,
		mailer: mailer,
		cfg:    cfg,
	}
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	tok, _, err := e.server.tokens.IssueAccess(user.ID, user.Username)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) upload(t *testing.T, token, caption string, image []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("caption", caption))
	part, err := w.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func unverifiedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := testutil.CreateUser(t, db, username)
	require.NoError(t, db.Model(user).Update("is_verified", false).Error)
	user.IsVerified = false
	return user
}
