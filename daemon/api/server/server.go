// Package server implements the daemon's REST + Server-Sent-Events control
// plane in front of engine.Engine.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quantarax/relay/engine"
)

// DaemonAPIServer wires an engine.Engine to HTTP handlers.
type DaemonAPIServer struct {
	engine *engine.Engine
}

// NewDaemonAPIServer constructs a DaemonAPIServer backed by eng.
func NewDaemonAPIServer(eng *engine.Engine) *DaemonAPIServer {
	return &DaemonAPIServer{engine: eng}
}

// RegisterHTTP registers every REST and SSE route on mux.
func (s *DaemonAPIServer) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/transfers/send", s.handleSend)
	mux.HandleFunc("/transfers/receive", s.handleReceive)
	mux.HandleFunc("/transfers/", s.handleTransferPrefix)
}

type sendRequest struct {
	Paths           []string `json:"paths"`
	SignalServerURL string   `json:"signal_server_url,omitempty"`
}

type sendResponse struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id"`
	Port      int    `json:"port"`
}

func (s *DaemonAPIServer) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Paths) == 0 {
		writeJSONError(w, http.StatusBadRequest, "paths is required")
		return
	}
	result, err := s.engine.StartSend(req.Paths, req.SignalServerURL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Code: result.Code, SessionID: result.SessionID, Port: result.Port})
}

type receiveRequest struct {
	Code            string `json:"code"`
	SaveDir         string `json:"save_dir"`
	SignalServerURL string `json:"signal_server_url,omitempty"`
}

type receiveResponse struct {
	SessionID string `json:"session_id"`
}

func (s *DaemonAPIServer) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.SaveDir == "" {
		writeJSONError(w, http.StatusBadRequest, "code and save_dir are required")
		return
	}
	sessionID, err := s.engine.StartReceive(req.Code, req.SaveDir, req.SignalServerURL)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receiveResponse{SessionID: sessionID})
}

// handleTransferPrefix dispatches /transfers/{id}/accept, /transfers/{id}/cancel,
// and /transfers/{id}/events.
func (s *DaemonAPIServer) handleTransferPrefix(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/transfers/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	sessionID, action := parts[0], parts[1]

	switch action {
	case "accept":
		s.handleAccept(w, r, sessionID)
	case "cancel":
		s.handleCancel(w, r, sessionID)
	case "events":
		s.handleEvents(w, r, sessionID)
	default:
		http.NotFound(w, r)
	}
}

type acceptRequest struct {
	Accept bool `json:"accept"`
}

func (s *DaemonAPIServer) handleAccept(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.AcceptTransfer(sessionID, req.Accept); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *DaemonAPIServer) handleCancel(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.CancelTransfer(sessionID); err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventJSON is the wire shape of one progress event; only the fields
// relevant to its kind are populated, mirroring the PeerMessage pattern.
type eventJSON struct {
	Kind string `json:"kind"`

	State          string `json:"state,omitempty"`
	ConnectionType string `json:"connection_type,omitempty"`

	SessionID string       `json:"session_id,omitempty"`
	Files     []fileOffer  `json:"files,omitempty"`

	BytesTransferred int64   `json:"bytes_transferred,omitempty"`
	BytesTotal       int64   `json:"bytes_total,omitempty"`
	SpeedBps         float64 `json:"speed_bps,omitempty"`
	ETASeconds       float64 `json:"eta_seconds,omitempty"`
	CurrentFile      string  `json:"current_file,omitempty"`
	Percent          float64 `json:"percent,omitempty"`

	Name string `json:"name,omitempty"`

	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	AverageSpeed    float64 `json:"average_speed,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	FileCount       int     `json:"file_count,omitempty"`

	Message string `json:"message,omitempty"`
}

type fileOffer struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
}

var eventKindNames = map[engine.ProgressKind]string{
	engine.EventStateChanged:          "state_changed",
	engine.EventConnectionTypeChanged: "connection_type_changed",
	engine.EventFileOffer:             "file_offer",
	engine.EventTransferProgress:      "transfer_progress",
	engine.EventFileCompleted:         "file_completed",
	engine.EventTransferComplete:      "transfer_complete",
	engine.EventError:                 "error",
}

func toEventJSON(e engine.ProgressEvent) eventJSON {
	out := eventJSON{
		Kind:             eventKindNames[e.Kind],
		State:            string(e.State),
		ConnectionType:   e.ConnectionType,
		SessionID:        e.SessionID,
		BytesTransferred: e.BytesTransferred,
		BytesTotal:       e.BytesTotal,
		SpeedBps:         e.SpeedBps,
		ETASeconds:       e.ETASeconds,
		CurrentFile:      e.CurrentFile,
		Percent:          e.Percent,
		Name:             e.Name,
		DurationSeconds:  e.DurationSeconds,
		AverageSpeed:     e.AverageSpeed,
		TotalBytes:       e.TotalBytes,
		FileCount:        e.FileCount,
		Message:          e.Message,
	}
	for _, f := range e.Files {
		out.Files = append(out.Files, fileOffer{Name: f.Name, Size: f.Size})
	}
	return out
}

// handleEvents streams sessionID's ProgressBus as Server-Sent Events until
// the client disconnects or the session reaches a terminal event.
func (s *DaemonAPIServer) handleEvents(w http.ResponseWriter, r *http.Request, sessionID string) {
	events, subID, ok := s.engine.Subscribe(sessionID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown session id")
		return
	}
	defer s.engine.Unsubscribe(sessionID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(toEventJSON(event))
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
			if event.Kind == engine.EventTransferComplete || event.Kind == engine.EventError {
				return
			}
		}
	}
}

type jsonError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonError{Error: msg})
}
