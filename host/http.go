package host

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"meetscribe/log"
)

// NewRouter mounts the action endpoint, REST conveniences over the same
// dispatcher, and the surface websocket.
func NewRouter(svc *Service, ws http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/message", svc.handleMessage).Methods(http.MethodPost)
	r.HandleFunc("/api/recording/start", svc.action(ActionStartRecording)).Methods(http.MethodPost)
	r.HandleFunc("/api/recording/stop", svc.action(ActionStopRecording)).Methods(http.MethodPost)
	r.HandleFunc("/api/transcripts", svc.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/transcripts/export", svc.action(ActionExportTranscripts)).Methods(http.MethodGet)
	r.HandleFunc("/api/transcripts/{id}", svc.handleByID(ActionGetTranscript)).Methods(http.MethodGet)
	r.HandleFunc("/api/transcripts/{id}", svc.handleByID(ActionDeleteTranscript)).Methods(http.MethodDelete)
	if ws != nil {
		r.Handle("/ws", ws)
	}
	return r
}

func (s *Service) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, http.StatusBadRequest, Response{Error: "malformed request"})
		return
	}
	s.respond(w, r, req)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	req := Request{Action: ActionListTranscripts}
	if q := r.URL.Query().Get("q"); q != "" {
		req = Request{Action: ActionSearchTranscripts, Query: q}
	}
	s.respond(w, r, req)
}

func (s *Service) handleByID(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, Request{Action: action, ID: mux.Vars(r)["id"]})
	}
}

func (s *Service) action(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, r, Request{Action: name})
	}
}

func (s *Service) respond(w http.ResponseWriter, r *http.Request, req Request) {
	resp := s.Dispatch(r.Context(), req)
	status := http.StatusOK
	switch {
	case resp.NotFound():
		status = http.StatusNotFound
	case !resp.Success:
		status = http.StatusInternalServerError
	}
	writeResponse(w, status, resp)
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Warnf("write response: %v", err)
	}
}
