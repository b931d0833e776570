// Package statusserver exposes read-only JSON diagnostics for a
// usbtmc.Driver and a busy-lock middleware that bounces mutating
// requests while the driver is not idle.
//
// Grounded on nasa-jpl-golaborate/cmd/dacsrv/main.go and
// cmd/multiserver/lib.go's chi wiring (chi.NewRouter, middleware.Logger)
// and server/server.go's RouteTable/"list of routes" shape, rebuilt
// against chi.Router instead of net/http.HandleFunc.
package statusserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/nasa-jpl/usbtmc-host/usbtmc"
)

// maxHistory bounds the number of OnFailed notifications HistorySink
// retains.
const maxHistory = 64

// HistorySink is a usbtmc.EventSink that keeps the most recent attach
// descriptor and a bounded ring of failure notifications, for the
// status server to report. Embed usbtmc.NopSink's behavior is not
// needed since every callback is implemented.
type HistorySink struct {
	mu       sync.Mutex
	descr    *usbtmc.DeviceDescriptor
	serial   []byte
	failures []FailureEvent
	lastByte byte
	haveByte bool
}

// FailureEvent is one recorded OnFailed notification.
type FailureEvent struct {
	Info   string `json:"info"`
	Detail byte   `json:"detail"`
}

// NewHistorySink returns an empty HistorySink.
func NewHistorySink() *HistorySink { return &HistorySink{} }

func (h *HistorySink) OnRcvdDescr(d usbtmc.DeviceDescriptor, serial []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := d
	h.descr = &cp
	h.serial = append([]byte(nil), serial...)
}

func (h *HistorySink) OnReceived(b byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastByte, h.haveByte = b, true
}

func (h *HistorySink) OnReadStatusByte(byte) {}

func (h *HistorySink) OnFailed(info usbtmc.InfoCode, detail byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, FailureEvent{Info: info.String(), Detail: detail})
	if len(h.failures) > maxHistory {
		h.failures = h.failures[len(h.failures)-maxHistory:]
	}
}

func (h *HistorySink) snapshot() (descr *usbtmc.DeviceDescriptor, serial []byte, failures []FailureEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.descr != nil {
		cp := *h.descr
		descr = &cp
	}
	return descr, append([]byte(nil), h.serial...), append([]FailureEvent(nil), h.failures...)
}

// Server wires a usbtmc.Driver and a HistorySink into a chi.Router of
// read-only diagnostic endpoints plus a locked command endpoint.
type Server struct {
	driver  *usbtmc.Driver
	history *HistorySink
	locker  *Locker
	router  chi.Router
}

// New builds a Server for driver, recording events into history.
func New(driver *usbtmc.Driver, history *HistorySink) *Server {
	s := &Server{driver: driver, history: history}
	s.locker = NewLocker(func() bool { return !driver.IsIdle() })
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/state", s.handleState)
	r.Get("/capabilities", s.handleCapabilities)
	r.Get("/failures", s.handleFailures)
	r.Get("/lock", s.locker.HTTPGet)
	r.Post("/lock", s.locker.HTTPSet)
	r.With(s.locker.Check).Post("/transmit", s.handleTransmit)
	r.Get("/list-of-routes", s.handleListRoutes)
	s.router = r
	return s
}

// Router returns the underlying chi.Router, ready to mount or listen on.
func (s *Server) Router() chi.Router { return s.router }

type stateResponse struct {
	State     string `json:"state"`
	Idle      bool   `json:"idle"`
	Connected bool   `json:"connected"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, stateResponse{
		State:     s.driver.State().String(),
		Idle:      s.driver.IsIdle(),
		Connected: s.driver.IsConnected(),
	})
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.driver.Capabilities())
}

type failuresResponse struct {
	Descriptor *usbtmc.DeviceDescriptor `json:"descriptor,omitempty"`
	Serial     string                   `json:"serial,omitempty"`
	Failures   []FailureEvent           `json:"failures"`
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	descr, serial, failures := s.history.snapshot()
	writeJSON(w, failuresResponse{Descriptor: descr, Serial: string(serial), Failures: failures})
}

type transmitRequest struct {
	DataBase64 string `json:"data"`
}

// handleTransmit feeds base64-encoded bytes into the driver's transmit
// ring (spec.md §4.4's Transmit short form). It runs behind the Locker
// so it is rejected with 423 while the driver is mid-command.
func (s *Server) handleTransmit(w http.ResponseWriter, r *http.Request) {
	var req transmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.driver.Transmit(len(data), data); err != nil {
		if err == usbtmc.ErrBusy {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes := []string{"/state", "/capabilities", "/failures", "/lock", "/transmit"}
	writeJSON(w, routes)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
