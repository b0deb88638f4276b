package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adiga-code/SimConnect/internal/metrics"
	"github.com/adiga-code/SimConnect/internal/notify"
	"go.uber.org/zap"
)

type EventsHandler struct {
	hub       *notify.Hub
	heartbeat time.Duration
}

// Stream serves the per-user event feed over server-sent events. The
// connection stays open until the client goes away; a comment line is sent
// every heartbeat interval so proxies do not cut the idle stream.
func (e *EventsHandler) Stream(writer http.ResponseWriter, req *http.Request) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		http.Error(writer, "Streaming is not supported", http.StatusInternalServerError)
		return
	}
	userID := GetUserIDFromContext(req.Context())

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)

	sub := e.hub.Subscribe(userID)
	defer e.hub.Unsubscribe(sub)
	metrics.StreamConnections.Inc()
	defer metrics.StreamConnections.Dec()

	fmt.Fprint(writer, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(writer, ": keep-alive\n\n")
			flusher.Flush()
		case event, open := <-sub.C():
			if !open {
				// The hub pruned this subscription as stalled.
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				zap.L().Error("error while serializing event", zap.Error(err))
				continue
			}
			fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
