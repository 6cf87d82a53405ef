// Package websocket runs one chat session per WebSocket connection: it
// authenticates the client, joins it to its room on the bus, turns inbound
// frames into chat events and writes group events back to the socket.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"Seshat/internal/bus"
	"Seshat/internal/models"
	"Seshat/internal/storage"
)

var sessionLogger = slog.With("component", "session")

var errAnonymous = errors.New("anonymous identity")

// Transport is the socket a session talks over. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, credential string) (models.Identity, error)
}

// Store is the part of the data store a session needs.
type Store interface {
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	GetOrCreateRoom(ctx context.Context, name string, creator models.Identity) (models.Room, error)
	ListRecentMessages(ctx context.Context, roomID int64, limit int) ([]models.Message, error)
	CreateMessage(ctx context.Context, roomID int64, author models.Identity, content string) (models.Message, error)
	VerifyRoomAccess(ctx context.Context, roomID, userID int64) (bool, error)
}

type Dependencies struct {
	Auth  IdentityResolver
	Store Store
	Bus   bus.Bus
}

type Options struct {
	HistoryLimit     int
	SendBuffer       int
	MaxMessageSize   int64
	MaxContentLength int
	// RateBurst events may arrive back to back, then one per RateInterval.
	// A negative burst disables the limit.
	RateBurst      int
	RateInterval   time.Duration
	PersistTimeout time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func DefaultOptions() Options {
	return Options{
		HistoryLimit:     50,
		SendBuffer:       256,
		MaxMessageSize:   4096,
		MaxContentLength: 1000,
		RateBurst:        10,
		RateInterval:     100 * time.Millisecond,
		PersistTimeout:   5 * time.Second,
		PingInterval:     54 * time.Second,
		PongWait:         60 * time.Second,
		WriteWait:        10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = d.MaxContentLength
	}
	if o.RateBurst == 0 {
		o.RateBurst = d.RateBurst
	}
	if o.RateInterval <= 0 {
		o.RateInterval = d.RateInterval
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = d.PersistTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	return o
}

// GroupKey is the bus group of a room.
func GroupKey(roomID int64) string {
	return fmt.Sprintf("chat_%d", roomID)
}

// Session is one client connection. It is a bus.Subscriber for its room.
type Session struct {
	id         string
	conn       Transport
	roomRef    string
	credential string
	deps       Dependencies
	opts       Options
	limiter    *rate.Limiter
	log        *slog.Logger

	state     atomic.Int32
	closeCode atomic.Int32
	send      chan models.Event
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once

	// written while joining, read-only afterwards
	identity models.Identity
	room     models.Room
	group    string
}

// NewSession prepares a session for conn. roomRef is a numeric room id or
// a group room name; credential is what the client presented, "" if nothing.
func NewSession(conn Transport, roomRef, credential string, deps Dependencies, opts Options) *Session {
	opts = opts.withDefaults()
	limit, burst := rate.Every(opts.RateInterval), opts.RateBurst
	if burst < 0 {
		limit, burst = rate.Inf, 0
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		roomRef:    roomRef,
		credential: credential,
		deps:       deps,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, burst),
		log:        sessionLogger.With("conn", id, "room", roomRef),
		send:       make(chan models.Event, opts.SendBuffer),
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// CloseCode is the close code the session sent, 0 while still open.
func (s *Session) CloseCode() int { return int(s.closeCode.Load()) }

// Deliver queues ev for the socket without blocking. It returns false when
// the send buffer is full or the session is closing.
func (s *Session) Deliver(ev models.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

// Run drives the session until it is closed. Cancelling ctx closes the
// session with CloseGoingAway.
func (s *Session) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		s.sendClose(reasonShutdown)
		s.conn.Close()
	})
	defer stop()
	defer s.setState(StateClosed)

	s.setState(StateAuthenticating)
	identity, err := s.deps.Auth.ResolveIdentity(ctx, s.credential)
	if err == nil && identity.Anonymous() {
		err = errAnonymous
	}
	if err != nil {
		s.log.Info("Authentication failed", "error", err)
		s.finish(reasonUnauthenticated)
		return
	}
	s.identity = identity

	s.setState(StateJoining)
	if reason, ok := s.join(ctx); !ok {
		s.finish(reason)
		return
	}
	s.log.Info("Session joined", "user", identity.Username, "room_id", s.room.ID)

	s.setState(StateActive)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()
	s.announce(ctx)
	reason := s.readLoop(ctx)

	s.setState(StateClosing)
	s.leave(ctx)
	s.finish(reason)
	<-writerDone
	s.log.Info("Session closed", "user", identity.Username, "code", s.CloseCode())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("Session state", "state", st)
}

// resolveRoom treats an all-digit ref as a room id and anything else as a
// group room name.
func (s *Session) resolveRoom(ctx context.Context) (models.Room, error) {
	if !isDigits(s.roomRef) {
		return s.deps.Store.GetOrCreateRoom(ctx, s.roomRef, s.identity)
	}
	id, err := strconv.ParseInt(s.roomRef, 10, 64)
	if err != nil {
		return models.Room{}, fmt.Errorf("room id %q: %w", s.roomRef, storage.ErrInvalidRoomName)
	}
	return s.deps.Store.GetRoom(ctx, id)
}

func isDigits(ref string) bool {
	if ref == "" {
		return false
	}
	for _, r := range ref {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Session) join(ctx context.Context) (closeReason, bool) {
	room, err := s.resolveRoom(ctx)
	if err != nil {
		return s.joinFailure(ctx, "resolve room", err), false
	}
	allowed, err := s.deps.Store.VerifyRoomAccess(ctx, room.ID, s.identity.UserID)
	if err != nil {
		return s.joinFailure(ctx, "verify access", err), false
	}
	if !allowed {
		s.log.Info("Room access denied", "user", s.identity.Username, "room_id", room.ID)
		return reasonAccessDenied, false
	}

	s.room = room
	s.group = GroupKey(room.ID)
	if err := s.deps.Bus.Join(ctx, s.group, s); err != nil {
		return s.joinFailure(ctx, "bus join", err), false
	}
	return closeReason{}, true
}

func (s *Session) joinFailure(ctx context.Context, step string, err error) closeReason {
	switch {
	case ctx.Err() != nil:
		return reasonShutdown
	case errors.Is(err, storage.ErrRoomNotFound), errors.Is(err, storage.ErrInvalidRoomName):
		s.log.Info("Room unavailable", "step", step, "error", err)
		return reasonAccessDenied
	}
	s.log.Error("Join failed", "step", step, "error", err)
	return reasonInternal
}

// announce sends the caller its welcome with recent history, then tells the
// group, the caller included, that it joined.
func (s *Session) announce(ctx context.Context) {
	history, err := s.deps.Store.ListRecentMessages(ctx, s.room.ID, s.opts.HistoryLimit)
	if err != nil {
		s.log.Warn("Loading history failed", "room_id", s.room.ID, "error", err)
		history = nil
	}
	now := time.Now().UTC()
	s.Deliver(models.Event{
		Type:      models.EventConnectionEstablished,
		RoomID:    s.room.ID,
		Message:   "connected to room " + strconv.FormatInt(s.room.ID, 10),
		User:      s.identity.Username,
		UserID:    s.identity.UserID,
		Timestamp: &now,
		History:   history,
	})
	s.publish(ctx, s.activity(models.ActivityJoined, ""), "")
}

func (s *Session) activity(action, status string) models.Event {
	now := time.Now().UTC()
	return models.Event{
		Type:      models.EventUserActivity,
		RoomID:    s.room.ID,
		User:      s.identity.Username,
		UserID:    s.identity.UserID,
		Action:    action,
		Status:    status,
		Timestamp: &now,
	}
}

func (s *Session) publish(ctx context.Context, ev models.Event, exclude string) {
	err := s.deps.Bus.Publish(ctx, bus.Message{Group: s.group, Event: ev, Exclude: exclude})
	if err != nil {
		s.log.Warn("Publish failed", "type", ev.Type, "error", err)
	}
}

func (s *Session) reply(code, message string) {
	if !s.Deliver(models.ErrorEvent(code, message)) {
		s.log.Debug("Error acknowledgment dropped", "code", code)
	}
}

func (s *Session) readLoop(ctx context.Context) closeReason {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		s.log.Warn("Setting read deadline failed", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.readFailure(ctx, err)
		}
		if !s.limiter.Allow() {
			s.reply(CodeRateLimited, "too many events, slow down")
			continue
		}
		if kind != websocket.TextMessage {
			s.reply(CodeMalformedEvent, "expected a text frame with a JSON object")
			continue
		}
		cmd, err := parseCommand(data)
		if err != nil {
			s.reply(errorCode(err), err.Error())
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

func (s *Session) readFailure(ctx context.Context, err error) closeReason {
	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case ctx.Err() != nil:
		return reasonShutdown
	case errors.As(err, &closeErr):
		s.log.Info("Peer closed connection", "code", closeErr.Code)
		return reasonNormal
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("Inbound frame over read limit", "limit", s.opts.MaxMessageSize)
		return reasonTooBig
	case errors.As(err, &netErr) && netErr.Timeout():
		s.log.Info("Heartbeat timed out")
		return reasonHeartbeat
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		s.log.Info("Connection dropped", "error", err)
		return reasonNormal
	}
	s.log.Warn("Read failed", "error", err)
	return reasonProtocol
}

func (s *Session) dispatch(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case chatCommand:
		s.handleChat(ctx, c)
	case typingCommand:
		typing := c.typing
		s.publish(ctx, models.Event{
			Type:     models.EventTyping,
			RoomID:   s.room.ID,
			User:     s.identity.Username,
			UserID:   s.identity.UserID,
			IsTyping: &typing,
		}, s.id)
	case presenceCommand:
		s.publish(ctx, s.activity(models.ActivityPresence, c.status), s.id)
	default:
		s.log.Error("Unhandled command", "command", fmt.Sprintf("%T", cmd))
	}
}

// handleChat persists the message and only then broadcasts it.
func (s *Session) handleChat(ctx context.Context, c chatCommand) {
	content := strings.TrimSpace(c.content)
	if content == "" {
		s.reply(CodeInvalidMessage, "message is empty")
		return
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		s.reply(CodeInvalidMessage, fmt.Sprintf("message is longer than %d characters", s.opts.MaxContentLength))
		return
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	msg, err := s.deps.Store.CreateMessage(pctx, s.room.ID, s.identity, content)
	cancel()
	if errors.Is(err, storage.ErrEmptyContent) {
		s.reply(CodeInvalidMessage, "message is empty")
		return
	}
	if err != nil {
		s.log.Error("Saving message failed", "user", s.identity.Username, "room_id", s.room.ID, "error", err)
		s.reply(CodePersistenceFailure, "message could not be saved")
		return
	}
	s.publish(ctx, models.ChatMessageEvent(msg), "")
}

func (s *Session) leave(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	if err := s.deps.Bus.Leave(bg, s.group, s); err != nil {
		s.log.Warn("Bus leave failed", "group", s.group, "error", err)
	}
	s.publish(bg, s.activity(models.ActivityLeft, ""), "")
}

// finish sends the close frame, stops event intake and closes the socket.
func (s *Session) finish(reason closeReason) {
	s.setState(StateClosing)
	s.sendClose(reason)
	s.doneOnce.Do(func() { close(s.done) })
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("Closing socket failed", "error", err)
	}
}

// sendClose writes the first close frame of the session; later calls are no-ops.
func (s *Session) sendClose(reason closeReason) {
	s.closeOnce.Do(func() {
		s.closeCode.Store(int32(reason.code))
		msg := websocket.FormatCloseMessage(reason.code, reason.text)
		err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			s.log.Debug("Close frame not sent", "code", reason.code, "error", err)
		}
	})
}
