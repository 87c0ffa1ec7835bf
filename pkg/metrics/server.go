package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartServer serves mux (plus /metrics) on port in the background and
// returns its shutdown function.
func (m *Metrics) StartServer(port int, mux *http.ServeMux, wrap func(http.Handler) http.Handler) (shutdown func(context.Context) error) {
	if mux == nil {
		mux = http.NewServeMux()
	}
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>pomassist</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	var handler http.Handler = mux
	if wrap != nil {
		handler = wrap(mux)
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
