package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Connections int    `json:"connections"`
}

func (ch *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Timestamp:   time.Now().Format(time.RFC3339),
		Service:     "seshat-chat",
		Version:     ch.version,
		Connections: ch.deps.Bus.Connections(),
	}
	if ch.ctx.Err() != nil {
		resp.Status = "shutting_down"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		chatLogger.Error("Writing health response failed", "error", err)
		return
	}
	chatLogger.Debug("Health check", "remote", r.RemoteAddr)
}
