package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/facility-enrich/internal/enrich"
	"github.com/sells-group/facility-enrich/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP host for enrichment and proposal requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(env.Orchestrator, env.Registry),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// proposalsRequest is the body of POST /facilities/{id}/proposals.
type proposalsRequest struct {
	Changes   []enrich.ChangeRequest `json:"changes"`
	Reasoning string                 `json:"reasoning"`
}

func buildRouter(o *enrich.Orchestrator, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"jobs_in_flight": o.InFlight(),
		})
	})

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Post("/facilities/{id}/enrich", func(w http.ResponseWriter, r *http.Request) {
		id, ok := facilityID(w, r)
		if !ok {
			return
		}
		if err := o.EnrichByID(r.Context(), id); err != nil {
			writeStoreError(w, id, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":      "accepted",
			"facility_id": id,
		})
	})

	r.Post("/facilities/{id}/proposals", func(w http.ResponseWriter, r *http.Request) {
		id, ok := facilityID(w, r)
		if !ok {
			return
		}
		var req proposalsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if len(req.Changes) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "changes is required"})
			return
		}

		report, err := o.ValidateProposedChanges(r.Context(), id, enrich.ResolveAll(req.Changes), req.Reasoning)
		if err != nil && report == nil {
			writeStoreError(w, id, err)
			return
		}
		if err != nil {
			// Validation ran but the write failed; the report says nothing was applied.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":  "write accepted fields failed",
				"report": report,
			})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

func facilityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid facility id"})
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, id int64, err error) {
	if eris.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("facility %d not found", id)})
		return
	}
	zap.L().Error("request failed", zap.Int64("facility_id", id), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
