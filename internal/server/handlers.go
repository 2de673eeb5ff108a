package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vexgw/go-vex-gateway/internal/buffer"
	"github.com/vexgw/go-vex-gateway/internal/gateway"
	"github.com/vexgw/go-vex-gateway/internal/metrics"
)

type sendRequest struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type receiveResponse struct {
	Messages     []buffer.Message `json:"messages"`
	USBConnected bool             `json:"usb_connected"`
	USBPort      string           `json:"usb_port"`
}

type statusResponse struct {
	Status       string `json:"status"`
	USBConnected bool   `json:"usb_connected"`
	USBPort      string `json:"usb_port"`
	BaudRate     int    `json:"baud_rate"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/vex", s.handleConsole)
	mux.HandleFunc("/api/send", s.handleSend)
	mux.HandleFunc("/api/receive", s.handleReceive)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		metrics.IncError(metrics.ErrHTTP)
		s.logger.Warn("http_write_error", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/vex", http.StatusFound)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.IncAPIRequest("send")
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Message: "invalid JSON body"})
		return
	}
	err := s.tx.Send(req.Message)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.writeJSON(w, http.StatusOK, sendResponse{Status: status, Message: gateway.Reason(err)})
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.IncAPIRequest("receive")
	lastID := uint64(0)
	if raw := r.URL.Query().Get("last_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid last_id", http.StatusBadRequest)
			return
		}
		lastID = v
	}
	st := s.conn.Status()
	s.writeJSON(w, http.StatusOK, receiveResponse{
		Messages:     s.buf.Since(lastID),
		USBConnected: st.Connected,
		USBPort:      portLabel(st.Path),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	metrics.IncAPIRequest("status")
	st := s.conn.Status()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:       "ok",
		USBConnected: st.Connected,
		USBPort:      portLabel(st.Path),
		BaudRate:     st.Baud,
	})
}

func portLabel(path string) string {
	if path == "" {
		return "N/A"
	}
	return path
}
