package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/castscan/internal/device"
	"github.com/muurk/castscan/internal/logging"
	"github.com/muurk/castscan/internal/service"
	"github.com/muurk/castscan/internal/version"
)

// Status is the body of GET /status
type Status struct {
	Version      string   `json:"version"`
	Searching    bool     `json:"searching"`
	Providers    int      `json:"providers"`
	Devices      int      `json:"devices"`
	Compatible   int      `json:"compatible"`
	PairingLevel string   `json:"pairing_level"`
	Filters      []string `json:"capability_filters"`
	EventStreams int      `json:"event_streams"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// Handler returns the API routes:
//
//	GET    /status
//	GET    /devices             compatible devices, ?all=true for every device
//	GET    /devices/{id}
//	DELETE /devices/{id}        forget a stored device
//	POST   /devices/{id}/connect
//	POST   /devices/{id}/disconnect
//	POST   /rescan
//	GET    /events              WebSocket stream of device events
//	GET    /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("GET /devices/{id}", s.handleDevice)
	mux.HandleFunc("DELETE /devices/{id}", s.handleForget)
	mux.HandleFunc("POST /devices/{id}/connect", s.handleConnect)
	mux.HandleFunc("POST /devices/{id}/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /rescan", s.handleRescan)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))
	return logRequests(mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	filters := []string{}
	for _, f := range s.manager.CapabilityFilters() {
		filters = append(filters, f.String())
	}
	writeJSON(w, http.StatusOK, Status{
		Version:      version.Full(),
		Searching:    s.manager.IsSearching(),
		Providers:    len(s.manager.Providers()),
		Devices:      len(s.manager.AllDevices()),
		Compatible:   len(s.manager.CompatibleDevices()),
		PairingLevel: s.manager.PairingLevel().String(),
		Filters:      filters,
		EventStreams: s.GetActiveConnections(),
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	devices := s.manager.CompatibleDevices()
	if all {
		devices = s.manager.AllDevices()
	}

	views := make([]device.View, 0, len(devices))
	for _, d := range devices {
		views = append(views, d.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(w, r)
	if d == nil {
		return
	}
	writeJSON(w, http.StatusOK, d.View())
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(w, r)
	if d == nil {
		return
	}
	if err := s.manager.ForgetDevice(d.ID()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(w, r)
	if d == nil {
		return
	}
	if err := d.Connect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.View())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	d := s.lookup(w, r)
	if d == nil {
		return
	}
	if err := d.Disconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.View())
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if !s.manager.IsSearching() {
		writeJSON(w, http.StatusConflict, errorBody{Error: "discovery is not running"})
		return
	}
	s.manager.Rescan()
	w.WriteHeader(http.StatusAccepted)
}

// lookup resolves {id} by device ID, falling back to IP address. It writes
// a 404 and returns nil when nothing matches.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *device.ConnectableDevice {
	id := r.PathValue("id")
	d := s.manager.DeviceByID(id)
	if d == nil {
		d = s.manager.DeviceByIPAddress(id)
	}
	if d == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "device " + id + " not found"})
	}
	return d
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

// writeError maps service command errors to their HTTP status. Codes
// outside the HTTP error range become 502, other errors 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var ce *service.CommandError
	if errors.As(err, &ce) {
		body.Code = ce.Code
		status = http.StatusBadGateway
		if ce.Code >= 400 && ce.Code < 600 {
			status = ce.Code
		}
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Debug("HTTP request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
