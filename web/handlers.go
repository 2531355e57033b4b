package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"

	"multi-serial-monitor/config"
	"multi-serial-monitor/devices"
	"multi-serial-monitor/logging"
	"multi-serial-monitor/registry"
	"multi-serial-monitor/types"
	"multi-serial-monitor/utils"
)

func copyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errorStatus maps core errors onto HTTP status codes.
func errorStatus(err error) int {
	var dupName *registry.DuplicateNameError
	var dupLoc *registry.DuplicateLocationError
	var connErr *devices.ConnectionError
	var writeErr *devices.WriteError
	switch {
	case errors.Is(err, registry.ErrUnknownConnection):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrEmptyName):
		return http.StatusBadRequest
	case errors.As(err, &dupName), errors.As(err, &dupLoc):
		return http.StatusConflict
	case errors.As(err, &connErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &writeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) deviceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid device id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Statuses())
}

func (s *Server) optionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"baud_rates":    config.STANDARD_BAUDRATES,
		"max_baud_rate": config.MAX_BAUDRATE,
		"stop_bits":     config.STOPBITS,
		"encodings":     config.ENCODINGS,
	})
}

func (s *Server) portsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := s.registry.Ports()
	if err != nil {
		s.logger.Warn("port enumeration failed", "error", err)
	}
	descriptors := make([]string, len(ports))
	for i, p := range ports {
		descriptors[i] = p.Descriptor()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports, "descriptors": descriptors})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) addDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}
	conn, err := s.registry.AddNamed(req.Name)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, conn.Status())
}

func (s *Server) removeDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}
	// removing an id that is already gone is not an error
	s.registry.Remove(id)
	writeJSON(w, http.StatusOK, s.registry.Statuses())
}

func (s *Server) renameDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.registry.Rename(id, req.Name); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.writeDeviceStatus(w, id)
}

type applyRequest struct {
	Location string `json:"location"`
	BaudRate int    `json:"baud_rate"`
	StopBits int    `json:"stop_bits"`
	Encoding string `json:"encoding"`
}

// connectionConfig fills the defaults and accepts a selector descriptor as location.
func (req applyRequest) connectionConfig() (types.ConnectionConfig, error) {
	cfg := config.DefaultConnectionConfig(types.LocationFromDescriptor(req.Location))
	if cfg.Location == "" {
		return cfg, errors.New("location is required")
	}
	if req.BaudRate != 0 {
		if req.BaudRate < 0 || req.BaudRate > config.MAX_BAUDRATE {
			return cfg, fmt.Errorf("baud rate must be within 0..%d", config.MAX_BAUDRATE)
		}
		cfg.BaudRate = req.BaudRate
	}
	if req.StopBits != 0 {
		cfg.StopBits = req.StopBits
	}
	if req.Encoding != "" {
		enc, err := types.ParseEncoding(req.Encoding)
		if err != nil {
			return cfg, err
		}
		cfg.Encoding = enc
	}
	return cfg, nil
}

func (s *Server) applyDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	cfg, err := req.connectionConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Configure(id, cfg); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	s.writeDeviceStatus(w, id)
}

// writeDeviceStatus answers with the device's status, or 404 when it was removed after the
// command ran.
func (s *Server) writeDeviceStatus(w http.ResponseWriter, id uuid.UUID) {
	conn, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, registry.ErrUnknownConnection)
		return
	}
	writeJSON(w, http.StatusOK, conn.Status())
}

func (s *Server) closeDeviceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.deviceID(w, r)
	if !ok {
		return
	}
	conn, found := s.registry.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, registry.ErrUnknownConnection)
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Warn("close device", "name", conn.Name(), "error", err)
	}
	writeJSON(w, http.StatusOK, conn.Status())
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	conn, ok := s.registry.Select(req.Name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no device named %q", req.Name))
		return
	}
	writeJSON(w, http.StatusOK, conn.Status())
}

type sendRequest struct {
	Text string `json:"text"`
	// Raw suppresses escape parsing and the configured line ending.
	Raw bool `json:"raw"`
}

func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	payload := []byte(req.Text)
	if !req.Raw {
		payload = append(utils.ParseEscapes(req.Text), s.lineEnding...)
	}
	if err := s.registry.Send(payload); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	selected := s.registry.Selected()
	writeJSON(w, http.StatusOK, map[string]any{"device": selected.Name(), "bytes": len(payload)})
}

func (s *Server) outputHandler(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sink.Since(since))
}

func parseSince(r *http.Request) (uint64, error) {
	v := r.URL.Query().Get("since")
	if v == "" {
		v = r.Header.Get("Last-Event-ID")
	}
	if v == "" {
		return 0, nil
	}
	since, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid since %q", v)
	}
	return since, nil
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// outputStreamHandler replays the retained output after ?since= (or Last-Event-ID) and
// then follows the sink live.
func (s *Server) outputStreamHandler(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sseHeaders(w)

	client := s.sink.Subscribe(256)
	defer s.sink.Unsubscribe(client)

	last := since
	send := func(c types.OutputChunk) {
		if c.Sequence <= last {
			return
		}
		last = c.Sequence
		data, _ := json.Marshal(c)
		fmt.Fprintf(w, "id: %d\ndata: %s\n\n", c.Sequence, data)
	}
	for _, c := range s.sink.Since(since) {
		send(c)
	}
	flush(w)

	for {
		select {
		case c, ok := <-client:
			if !ok {
				return
			}
			// a dropped chunk shows up as a gap; fill it from the history
			if c.Sequence > last+1 {
				for _, missed := range s.sink.Since(last) {
					send(missed)
				}
			}
			send(c)
			flush(w)
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Server) copyOutputHandler(w http.ResponseWriter, r *http.Request) {
	text := s.sink.Text()
	if err := s.copyText(text); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("clipboard: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks": s.sink.Len(), "characters": len(text)})
}

func (s *Server) logsStreamHandler(w http.ResponseWriter, r *http.Request) {
	sseHeaders(w)

	client := make(chan types.LogMessage, 100)
	logging.AddLogClient(client)
	defer logging.RemoveLogClient(client)
	flush(w)

	for {
		select {
		case msg := <-client:
			data, _ := json.Marshal(msg)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flush(w)
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}
