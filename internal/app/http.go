package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hyquery/pkg/config"
	"hyquery/pkg/logger"
)

// startAdmin serves /metrics, /healthz, /readyz, and /statusz on the admin
// address. Returns a channel that yields the server error, if any. The
// query path itself stays pure UDP; this endpoint exists for operators.
func (a *App) startAdmin(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	if a.opts.AdminAddr == "" {
		return errCh
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
	r.HandleFunc("/statusz", a.statuszHandler).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              a.opts.AdminAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("admin_listening", "addr", a.opts.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	return errCh
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz reports ready once the query listener is bound. With a shared
// store coordinator, Start already validated connectivity before the
// listener opened, so socket presence is the whole story.
func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	if a.conn == nil {
		http.Error(w, "listener not open", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) statuszHandler(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"server":       a.host.ServerName(),
		"online":       len(a.host.Players()),
		"maxPlayers":   a.host.MaxPlayers(),
		"version":      a.host.Version(),
		"network":      a.cfg.NetworkEnabled(),
		"limiterSize":  a.handler.LimiterSize(),
		"coordination": a.obs.MetricsSummary(),
	}
	if a.cfg.NetworkEnabled() {
		status["role"] = a.cfg.Network.Role
		status["namespace"] = config.NormalizedNamespace(a.cfg.Network.Namespace)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
