package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/site-analyzer/internal/analyzer"
	"github.com/sells-group/site-analyzer/internal/crawlerr"
	"github.com/sells-group/site-analyzer/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP layer for analysis requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		orch := initOrchestrator(st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, orch, ctx),
		}

		go shutdownOnDone(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownOnDone waits for ctx to be canceled, then drains the server.
// The canceled ctx cannot drive the drain itself, so in-flight requests
// get their own window.
func shutdownOnDone(ctx context.Context, srv *http.Server, drain time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	_ = srv.Shutdown(drainCtx)
}

// newRouter builds the chi router. runCtx outlives individual requests:
// analysis runs are fire-and-forget from the HTTP caller's view, but each
// run always records a terminal status, so a dropped connection never
// leaves a record stuck in analyzing.
func newRouter(st store.Store, orch *analyzer.Orchestrator, runCtx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Api-Key"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/analysis/site", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Tenant string `json:"tenant"`
			URL    string `json:"url"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Tenant == "" || body.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant and url are required"})
			return
		}
		if err := orch.Preflight(req.Context(), body.URL); err != nil {
			writeError(w, err)
			return
		}
		apiKey := req.Header.Get("X-Api-Key")

		go func() {
			if err := orch.AnalyzeSite(runCtx, body.Tenant, body.URL, apiKey); err != nil {
				zap.L().Warn("serve: analysis failed",
					zap.String("tenant", body.Tenant),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"url":    body.URL,
		})
	})

	r.Post("/api/analysis/pages", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Tenant string   `json:"tenant"`
			URLs   []string `json:"urls"`
			Append bool     `json:"append"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Tenant == "" || len(body.URLs) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant and urls are required"})
			return
		}
		for _, u := range body.URLs {
			if err := orch.Preflight(req.Context(), u); err != nil {
				writeError(w, err)
				return
			}
		}
		apiKey := req.Header.Get("X-Api-Key")

		go func() {
			if err := orch.AnalyzePages(runCtx, body.Tenant, body.URLs, apiKey, body.Append); err != nil {
				zap.L().Warn("serve: page analysis failed",
					zap.String("tenant", body.Tenant),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/api/analysis/{tenant}", func(w http.ResponseWriter, req *http.Request) {
		tenant := chi.URLParam(req, "tenant")
		rec, err := st.GetProfile(req.Context(), tenant)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis record"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	r.Get("/api/analysis/{tenant}/pages", func(w http.ResponseWriter, req *http.Request) {
		tenant := chi.URLParam(req, "tenant")
		pages, err := st.ListAnalyzedPages(req.Context(), tenant)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pages)
	})

	r.Delete("/api/analysis/{tenant}", func(w http.ResponseWriter, req *http.Request) {
		tenant := chi.URLParam(req, "tenant")
		if err := st.DeleteAnalysis(req.Context(), tenant); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps taxonomy kinds to status codes: pre-flight validation
// failures are the caller's fault, everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	kind := crawlerr.KindOf(err)
	status := http.StatusInternalServerError
	if crawlerr.IsPreflight(kind) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"error": crawlerr.Sanitized(err),
		"kind":  string(kind),
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
