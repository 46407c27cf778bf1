package watcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewStatusHandler exposes the watcher over http:
//
//	GET  /healthz  liveness
//	GET  /status   running totals and the last cycle result
//	POST /check    runs a cycle (or joins the running one) and returns its result
//
// Cycles started over http run under ctx rather than the request context, so a
// disconnecting client does not cancel a cycle other triggers may have joined.
func NewStatusHandler(ctx context.Context, w *Watcher) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, w.Stats())
	}).Methods(http.MethodGet)
	router.HandleFunc("/check", func(rw http.ResponseWriter, r *http.Request) {
		result := w.Check(ctx)
		status := http.StatusOK
		if result.Failed() {
			status = http.StatusBadGateway
		}
		writeJSON(rw, status, result)
	}).Methods(http.MethodPost)
	return router
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("content-type", "application/json")
	rw.WriteHeader(status)
	err := json.NewEncoder(rw).Encode(v)
	if err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}
