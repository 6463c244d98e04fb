package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/toolbox/internal/auth"
	"github.com/triage-ai/toolbox/internal/chread"
	"github.com/triage-ai/toolbox/internal/engine"
)

// Version is reported by the banner endpoint.
const Version = "1.0.0"

// InvocationReader is the read side of the invocation event store.
// *chread.Reader satisfies it.
type InvocationReader interface {
	ListInvocations(ctx context.Context, params chread.ListInvocationsParams) ([]chread.InvocationRow, int, error)
	GetInvocation(ctx context.Context, requestID string) (*chread.InvocationRow, error)
	GetStats(ctx context.Context, days int) (*chread.Stats, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Dispatcher *engine.Dispatcher
	Reader     InvocationReader   // nil if ClickHouse unavailable
	Auth       auth.Authenticator // nil leaves every route open
	Logger     *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Discovery stays open so clients can list tools before holding a key.
	mux.HandleFunc("GET /{$}", deps.handleRoot)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /mcp/tools", deps.handleListTools)

	mux.HandleFunc("POST /mcp/invoke", deps.authMiddleware(deps.handleInvoke))

	// Invocation history (ClickHouse)
	mux.HandleFunc("GET /api/invocations", deps.authMiddleware(deps.handleListInvocations))
	mux.HandleFunc("GET /api/invocations/stats", deps.authMiddleware(deps.handleGetStats))
	mux.HandleFunc("GET /api/invocations/{request_id}", deps.authMiddleware(deps.handleGetInvocation))

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
