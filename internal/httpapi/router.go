package httpapi

import (
	"fmt"
	"net/http"

	"promptforge/internal/auth"
	"promptforge/internal/config"
	"promptforge/internal/dispatch"
	"promptforge/internal/middleware"
	"promptforge/internal/utils"
)

// maxBodyBytes bounds request bodies; a pasted key list is small.
const maxBodyBytes = 1 << 20

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Config  *config.Config
	Runtime *dispatch.Runtime
	logger  *utils.Logger
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	rt, err := dispatch.NewRuntime(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}

	deps := NewDependencies(cfg, rt)
	return Handler(deps), deps, nil
}

// NewDependencies binds a runtime to the HTTP handlers.
func NewDependencies(cfg *config.Config, rt *dispatch.Runtime) *Dependencies {
	return &Dependencies{
		Config:  cfg,
		Runtime: rt,
		logger:  utils.NewLogger("httpapi"),
	}
}

// Handler returns a mux serving every route for deps.
func Handler(deps *Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return mux
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	cfg := deps.Config

	// Session token exchange - public
	mux.HandleFunc("POST /v1/token", auth.TokenHandler(cfg))

	generator := middleware.JWTMiddleware(cfg, auth.RoleGenerator)
	viewer := middleware.JWTMiddleware(cfg, auth.RoleViewer)

	mux.Handle("POST /v1/prompts", generator(http.HandlerFunc(deps.handleGenerate)))
	mux.Handle("POST /v1/keys/validate", viewer(http.HandlerFunc(deps.handleValidate)))

	mux.HandleFunc("GET /v1/modes", deps.handleModes)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
