package control

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corestate/statecraft/internal/engine"
	"github.com/corestate/statecraft/internal/model"
)

func newTestWorkspace() *Workspace {
	root := model.NewState("root", "root", model.VariantExecution)
	sm := model.NewStateMachine("sm1", root)
	eng := engine.New(engine.Config{}, nil, nil)
	return NewWorkspace(sm, eng, nil, nil)
}

func TestEngineStatusRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware("test-secret")
	router := NewRouter(RouterConfig{Workspace: newTestWorkspace(), Auth: auth, ServiceName: "statecraft-test"})

	req := httptest.NewRequest(http.MethodGet, "/api/engine/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token: want=%d got=%d", http.StatusUnauthorized, rec.Code)
	}
}

func TestEngineStatusWithValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware("test-secret")
	router := NewRouter(RouterConfig{Workspace: newTestWorkspace(), Auth: auth, ServiceName: "statecraft-test"})

	token, err := auth.IssueToken("operator-1", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/engine/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status with token: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestClipboardCopyRejectedWithEmptySelection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware("test-secret")
	router := NewRouter(RouterConfig{Workspace: newTestWorkspace(), Auth: auth, ServiceName: "statecraft-test"})

	token, _ := auth.IssueToken("operator-1", time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/api/clipboard/copy", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("copy with empty selection: want=%d got=%d body=%s", http.StatusBadRequest, rec.Code, rec.Body.String())
	}
}
