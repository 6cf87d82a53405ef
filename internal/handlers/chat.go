package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"Seshat/internal/auth"
	wsHub "Seshat/internal/websocket"
)

var chatLogger = slog.With("component", "chat")

type Config struct {
	// AllowedOrigins lists scheme://host origins; "*" admits any origin.
	AllowedOrigins []string
	Version        string
	Session        wsHub.Options
}

type ChatHandler struct {
	deps     wsHub.Dependencies
	opts     wsHub.Options
	version  string
	upgrader websocket.Upgrader

	origins  map[string]struct{}
	allowAll bool

	// sessions run under ctx; Close cancels it
	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup

	// mu orders sessions.Add against Close so Wait never races an Add
	mu     sync.Mutex
	closed bool
}

func NewChatHandler(deps wsHub.Dependencies, cfg Config) *ChatHandler {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &ChatHandler{
		deps:    deps,
		opts:    cfg.Session,
		version: cfg.Version,
		origins: make(map[string]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			ch.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(origin)
		if !ok {
			chatLogger.Warn("Ignoring invalid allowed origin", "origin", origin)
			continue
		}
		ch.origins[normalized] = struct{}{}
	}
	ch.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     ch.checkOrigin,
	}
	return ch
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// checkOrigin admits non-browser clients, which send no Origin, and
// browsers from a configured origin.
func (ch *ChatHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || ch.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if ok {
		if _, allowed := ch.origins[normalized]; allowed {
			return true
		}
	}
	chatLogger.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin, "remote", r.RemoteAddr)
	return false
}

// ServeWS upgrades the request and runs the chat session for it until the
// connection ends.
func (ch *ChatHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]
	chatLogger.Info("WebSocket connection attempt",
		"room", room,
		"origin", r.Header.Get("Origin"),
		"remote", r.RemoteAddr)

	if !ch.begin() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer ch.sessions.Done()
	credential := auth.CredentialFromRequest(r)

	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		chatLogger.Error("Error WebSocket upgrade", "error", err, "remote", r.RemoteAddr)
		return
	}

	wsHub.NewSession(conn, room, credential, ch.deps, ch.opts).Run(ch.ctx)
}

// begin registers a session unless the handler is closed.
func (ch *ChatHandler) begin() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return false
	}
	ch.sessions.Add(1)
	return true
}

// Close ends every running session with a going-away close frame and
// refuses new ones.
func (ch *ChatHandler) Close() {
	ch.mu.Lock()
	ch.closed = true
	ch.mu.Unlock()
	ch.cancel()
}

// Wait blocks until all sessions have ended or timeout passes. It reports
// whether they all ended.
func (ch *ChatHandler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		ch.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		chatLogger.Warn("Sessions still running after shutdown timeout", "timeout", timeout)
		return false
	}
}
