package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the adapter's HTTP surface: the websocket endpoint,
// read-only inspection routes, and the metrics scrape target.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/locks", s.handleLocks).Methods("GET")
	r.HandleFunc("/workflows/{id}/lock", s.handleWorkflowLock).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Stats())
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.AllLocks())
}

func (s *Server) handleWorkflowLock(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	lk, ok := s.coord.GetWorkflowLock(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no lock held on workflow"})
		return
	}
	writeJSON(w, http.StatusOK, lk)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
