package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/EGF2/file/pkg/lifecycle"
)

// EventsHandler is the event transport adapter: it accepts change events
// delivered by webhook and hands each to the dispatcher.
type EventsHandler struct {
	dispatcher *lifecycle.Dispatcher
	logger     *slog.Logger
}

func NewEventsHandler(dispatcher *lifecycle.Dispatcher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, logger: logger}
}

// EventsResponse reports where each accepted event was routed
type EventsResponse struct {
	Accepted int               `json:"accepted"`
	Routes   []lifecycle.Route `json:"routes"`
}

// Receive accepts a single event object or an array of events. Handler
// failures never reach the caller; only undecodable bodies are rejected.
func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
			return
		}
		h.logger.Error("Failed to read events", "error", err)
		writeError(w, r, http.StatusBadRequest, "unreadable_body", err.Error())
		return
	}

	events, err := decodeEvents(body)
	if err != nil {
		h.logger.Error("Failed to decode events", "error", err)
		writeError(w, r, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	resp := EventsResponse{Routes: make([]lifecycle.Route, 0, len(events))}
	for _, ev := range events {
		resp.Routes = append(resp.Routes, h.dispatcher.Dispatch(r.Context(), ev))
		resp.Accepted++
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

func decodeEvents(body []byte) ([]*lifecycle.ChangeEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []*lifecycle.ChangeEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var ev lifecycle.ChangeEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, err
	}
	return []*lifecycle.ChangeEvent{&ev}, nil
}
