package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"csv-agent/config"
	"csv-agent/session"
	"csv-agent/web/middleware"
	"csv-agent/web/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const sessionID = "5e0c9b1a-2f3d-4c6e-8a7b-1d2e3f4a5b6c"

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingCleaner struct {
	mu      sync.Mutex
	cleaned []string
}

func (r *recordingCleaner) CleanupSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleaned = append(r.cleaned, id)
}

func (r *recordingCleaner) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cleaned...)
}

func TestReleaseSessionRemovesWorkspace(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, sessionID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("x"), 0o644))

	cleaner := &recordingCleaner{}
	cs := NewCleanupService(root, cleaner, zap.NewNop())
	store, err := session.NewStore(4, cs.ReleaseSession, zap.NewNop())
	require.NoError(t, err)

	store.GetOrCreate(sessionID)
	require.True(t, store.Remove(sessionID))

	assert.Equal(t, []string{sessionID}, cleaner.ids())
	assert.NoDirExists(t, dir)
	assert.DirExists(t, root)
}

func TestReleaseSessionIgnoresForeignIDs(t *testing.T) {
	root := t.TempDir()
	cleaner := &recordingCleaner{}
	cs := NewCleanupService(root, cleaner, zap.NewNop())
	store, err := session.NewStore(4, cs.ReleaseSession, zap.NewNop())
	require.NoError(t, err)

	store.GetOrCreate("..")
	store.Remove("..")
	assert.Empty(t, cleaner.ids())
	assert.DirExists(t, root)
}

func TestCleanupIdleSessions(t *testing.T) {
	cleaner := &recordingCleaner{}
	cs := NewCleanupService(t.TempDir(), cleaner, zap.NewNop())
	store, err := session.NewStore(4, cs.ReleaseSession, zap.NewNop())
	require.NoError(t, err)

	store.GetOrCreate(sessionID)
	assert.Equal(t, 0, cs.CleanupIdleSessions(context.Background(), store, time.Hour))
	assert.Equal(t, 1, store.Len())

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, cs.CleanupIdleSessions(context.Background(), store, time.Millisecond))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{sessionID}, cleaner.ids())
}

func TestStartWorkspaceCleanupStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	cs := NewCleanupService(t.TempDir(), nil, zap.NewNop())
	store, err := session.NewStore(4, cs.ReleaseSession, zap.NewNop())
	require.NoError(t, err)
	store.GetOrCreate(sessionID)

	cfg := &config.Config{CleanupEnabled: true, CleanupInterval: time.Millisecond, SessionRetentionAge: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartWorkspaceCleanup(ctx, cfg, cs, store, zap.NewNop())
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestStartWorkspaceCleanupDisabled(t *testing.T) {
	cs := NewCleanupService(t.TempDir(), nil, zap.NewNop())
	store, err := session.NewStore(4, nil, zap.NewNop())
	require.NoError(t, err)

	// returns immediately instead of blocking
	StartWorkspaceCleanup(context.Background(), &config.Config{CleanupEnabled: false}, cs, store, zap.NewNop())
}

func TestServerRoutes(t *testing.T) {
	cfg := &config.Config{
		AvailableModels:         []string{"gpt-4o"},
		DefaultModel:            "gpt-4o",
		WorkspaceDir:            t.TempDir(),
		RateLimitMessagesPerMin: 1,
		RateLimitFilesPerHour:   1,
		RateLimitBurstSize:      1,
	}
	logger := zap.NewNop()
	store, err := session.NewStore(4, nil, logger)
	require.NoError(t, err)

	srv := NewServer(cfg, store, services.NewChatService(logger), services.NewDatasetService(cfg, nil, nil, logger), logger)
	defer srv.Close()

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookieName, cookies[0].Name)

	// the message bucket holds a single token
	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		req.AddCookie(cookies[0])
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}
