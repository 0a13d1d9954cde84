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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/series"
	"github.com/pricewatch/wishlist-cli/internal/store"
	"github.com/pricewatch/wishlist-cli/internal/syncer"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API for the chart frontend",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openMigratedStore(ctx)
		if err != nil {
			return eris.Wrap(err, "serve: open store")
		}
		defer st.Close() //nolint:errcheck

		api := &apiServer{
			store:  st,
			series: series.New(st),
			syncer: newSyncer(st),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("api server listening", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "serve: shutdown")
			}
			return nil
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return eris.Wrap(err, "serve: listen")
		}
	},
}

type apiServer struct {
	store  store.Store
	series *series.Service
	syncer *syncer.Syncer
}

func (a *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/items", a.handleListItems)
		r.Delete("/items/{appid}", a.handleDeleteItem)
		r.Get("/items/{appid}/observations", a.handleListObservations)
		r.Get("/items/{appid}/series", a.handleSeries)
		r.Get("/observations", a.handleListAllObservations)
		r.Delete("/observations/batch/{ts}", a.handleDeleteBatch)
		r.Post("/sync", a.handleSync)
		r.Post("/sync/history", a.handleSyncHistory)
		r.Get("/runs", a.handleListRuns)
	})
	return r
}

func (a *apiServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ListItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *apiServer) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	deleted, err := a.store.DeleteItem(r.Context(), appID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, eris.Errorf("item %d not found", appID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": appID})
}

func (a *apiServer) handleListObservations(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	obs, err := a.store.ListObservations(r.Context(), store.ObservationFilter{AppID: appID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

func (a *apiServer) handleListAllObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := a.store.ListObservations(r.Context(), store.ObservationFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

func (a *apiServer) handleSeries(w http.ResponseWriter, r *http.Request) {
	appID, ok := appIDParam(w, r)
	if !ok {
		return
	}
	period := model.PeriodYear
	if p := r.URL.Query().Get("period"); p != "" {
		parsed, err := model.ParsePeriod(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		period = parsed
	}
	res, err := a.series.Window(r.Context(), appID, period, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *apiServer) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	ts, err := time.Parse(time.RFC3339, chi.URLParam(r, "ts"))
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "parse batch timestamp"))
		return
	}
	deleted, err := a.store.DeleteObservationsByBatch(r.Context(), ts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, eris.New("no observations matched that batch"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_batch": ts.UTC()})
}

func (a *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := a.syncer.SyncWishlist(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *apiServer) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	summary, err := a.syncer.SyncHistory(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.store.ListSyncRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func appIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	appID, err := strconv.ParseInt(chi.URLParam(r, "appid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "parse appid"))
		return 0, false
	}
	return appID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Warn("api error", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
