// Package api exposes the staff-facing read API: thread and message
// lookups for tooling, plus health and metrics endpoints. The API never
// mutates thread or message state; all writes go through the bot adapters.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modmaild/pkg/models"
	"modmaild/pkg/store"
)

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func jsonWrite(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the staff API handler with logging and per-client rate
// limiting applied.
func Handler(rps float64, burst int) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/threads", listThreads).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}", getThread).Methods(http.MethodGet)
	v1.HandleFunc("/threads/{id}/messages", listThreadMessages).Methods(http.MethodGet)

	return requestLog(rateLimit(r, rps, burst))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyz(w http.ResponseWriter, _ *http.Request) {
	if !store.Ready() {
		jsonError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// listThreads handles GET /v1/threads?user=<id>. The user parameter is
// required; threads are returned in creation order, closed ones included.
func listThreads(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		jsonError(w, http.StatusBadRequest, "user parameter required")
		return
	}
	threads, err := store.ListThreadsByUser(user)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	jsonWrite(w, struct {
		User    string          `json:"user"`
		Threads []models.Thread `json:"threads"`
	}{User: user, Threads: threads})
}

func getThread(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := store.GetThread(id)
	if err == store.ErrNotFound {
		jsonError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonWrite(w, t)
}

func listThreadMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msgs, err := store.ListMessages(id)
	if err == store.ErrNotFound {
		jsonError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonWrite(w, struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: id, Messages: msgs})
}
