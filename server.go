package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newServeMux serves the metrics of reg and the log file list of dir.
func newServeMux(reg *prometheus.Registry, dir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("GET /logs", func(w http.ResponseWriter, r *http.Request) {
		names, err := logFileList(dir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(names)
	})

	mux.HandleFunc("GET /logs/{name}", func(w http.ResponseWriter, r *http.Request) {
		content, err := logFileContent(dir, r.PathValue("name"))
		if err != nil {
			http.Error(w, err.Error(), logErrorStatus(err))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(content))
	})

	mux.HandleFunc("DELETE /logs/{name}", func(w http.ResponseWriter, r *http.Request) {
		if err := deleteLogFile(dir, r.PathValue("name")); err != nil {
			http.Error(w, err.Error(), logErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func logErrorStatus(err error) int {
	switch {
	case errors.Is(err, errBadLogName):
		return http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// startServer serves handler on addr until ctx is done.
func startServer(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		coreLog.Infof("serving metrics and logs on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			coreLog.Errorf("http server: %v", err)
		}
	}()
}
