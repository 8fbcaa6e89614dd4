package wsocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"portfolio_translation_go_backend/internal/services"
	"portfolio_translation_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 10 * time.Second

// JobStatusSource loads the current view of a job.
type JobStatusSource interface {
	GetJobStatus(ctx context.Context, jobID string) (*services.JobView, error)
}

type Handler struct {
	jobs         JobStatusSource
	broker       *broker.Broker
	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

type Message struct {
	Type  string             `json:"type"`
	JobID string             `json:"job_id"`
	Job   *services.JobView  `json:"job,omitempty"`
	Event *services.JobEvent `json:"event,omitempty"`
	Error string             `json:"error,omitempty"`
}

// NewHandler streams job updates. Events published on the broker are pushed
// as they happen; the store is polled every pollInterval for updates made by
// workers in other processes.
func NewHandler(jobs JobStatusSource, messageBroker *broker.Broker, upgrader websocket.Upgrader, pollInterval time.Duration) *Handler {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Handler{
		jobs:         jobs,
		broker:       messageBroker,
		upgrader:     upgrader,
		pollInterval: pollInterval,
	}
}

// HandleJobStatus writes job updates until the job is terminal or the client
// goes away.
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	view, err := h.jobs.GetJobStatus(r.Context(), jobID)
	if errors.Is(err, services.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job for websocket")
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := services.JobTopic(jobID)
	events := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, events)

	// Clients only listen; reading detects a closed connection.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.writeStatus(conn, view) || view.Status.IsTerminal() {
		h.close(conn)
		return
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			event, ok := msg.(services.JobEvent)
			if !ok {
				continue
			}
			if !h.write(conn, Message{Type: "job_event", JobID: jobID, Event: &event}) {
				return
			}
			if event.Status.IsTerminal() {
				if h.refresh(ctx, conn, jobID) {
					h.close(conn)
				}
				return
			}
		case <-ticker.C:
			if h.refresh(ctx, conn, jobID) {
				h.close(conn)
				return
			}
		}
	}
}

// refresh sends the stored view and reports whether the stream is finished.
func (h *Handler) refresh(ctx context.Context, conn *websocket.Conn, jobID string) bool {
	view, err := h.jobs.GetJobStatus(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to poll job status")
		return !h.write(conn, Message{Type: "error", JobID: jobID, Error: "Failed to load job status"})
	}
	return !h.writeStatus(conn, view) || view.Status.IsTerminal()
}

func (h *Handler) writeStatus(conn *websocket.Conn, view *services.JobView) bool {
	return h.write(conn, Message{Type: "job_status", JobID: view.JobID, Job: view})
}

func (h *Handler) write(conn *websocket.Conn, msg Message) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("job_id", msg.JobID).Str("type", msg.Type).Msg("Failed to write websocket message")
		return false
	}
	return true
}

func (h *Handler) close(conn *websocket.Conn) {
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Msg("Failed to send websocket close")
	}
}
