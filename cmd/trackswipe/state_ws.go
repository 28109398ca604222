package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that reads reducer-emitted broadcasts and fans out
//
// Design constraints:
//   - DaemonState remains daemon-owned; never expose *DaemonState to other goroutines.
//   - Initial state snapshot on connect goes through the reducer/event loop.
//   - Gesture broadcasts keep their order and are never coalesced.
//   - Slow clients are disconnected if they can't keep up.
//
// Notes:
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "state_init" with a StateSnapshot in data.
//   - Inbound text frames are action envelopes ({type, data}), same as IPC.
//
// ============================================================================

// wsStateInit is the JSON `data` payload for the WS "state_init" event.
type wsStateInit struct {
	ClientID string `json:"client_id"`
	StateSnapshot
}

// wsGestureData is the JSON `data` payload for "gesture".
type wsGestureData struct {
	Device    string `json:"device"`
	Gesture   string `json:"gesture"`
	Direction string `json:"direction,omitempty"`
	Slot      *int   `json:"slot,omitempty"`
	AllowWrap bool   `json:"allow_wrap,omitempty"`
}

// wsUIPhaseData is the JSON `data` payload for "ui_phase_changed".
type wsUIPhaseData struct {
	Active         bool `json:"active"`
	Slot           int  `json:"slot"`
	ReleaseConfirm bool `json:"release_confirm"`
}

// wsSettingsData is the JSON `data` payload for "settings_changed".
type wsSettingsData struct {
	Enabled         bool `json:"enabled"`
	RequiredFingers int  `json:"required_fingers"`
}

// wsDeviceData is the JSON `data` payload for "device_changed".
type wsDeviceData struct {
	Device   string `json:"device"`
	Attached bool   `json:"attached"`
	Error    string `json:"error,omitempty"`
}

// wsAccumulatorData is the JSON `data` payload for "accumulator".
type wsAccumulatorData struct {
	Device string `json:"device"`
	Accumulator
}

// wsErrorData is sent back to a client whose inbound frame was rejected.
type wsErrorData struct {
	Error string `json:"error"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // optional timestamp; zero means use now

	// coalesceKey is non-empty for latest-wins events.
	coalesceKey string
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &at, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// Configuration
	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	// If zero, a conservative default is used.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	// If zero, a conservative default is used.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "client_id", c.id, "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "client_id", c.id, "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	id   string
	conn *websocket.Conn
	send chan []byte

	// events receives decoded inbound actions; nil means inbound frames are ignored.
	events chan<- Event

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel and a fresh id.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, events chan<- Event, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// maxInboundMessage bounds inbound action frames.
	maxInboundMessage = 64 * 1024
)

// wsTelemetryCoalesceWindow is the maximum time window during which bursty accumulator
// samples are coalesced (latest-wins per device) before broadcasting to clients.
const wsTelemetryCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump reads inbound action frames and forwards them to the daemon loop.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}

		if typ != websocket.TextMessage || c.events == nil {
			continue
		}
		c.handleInbound(msg)
	}
}

func (c *Client) handleInbound(msg []byte) {
	ev, err := UnmarshalEvent(msg)
	if err != nil {
		c.logger.Debug("ws inbound rejected", "client_id", c.id, "error", err)
		c.reply("error", wsErrorData{Error: err.Error()})
		return
	}

	select {
	case c.events <- ev:
	default:
		c.reply("error", wsErrorData{Error: "event queue full"})
	}
}

// reply sends a message to this client only; it is dropped if the client is slow.
func (c *Client) reply(typ string, data any) {
	msg, err := marshalEnvelope(typ, time.Time{}, data)
	if err != nil {
		return
	}
	defer func() {
		_ = recover() // send may be closed by the hub concurrently
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) logExit(pump, what string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "client_id", c.id, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+what+")", "client_id", c.id, "error", err)
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Used for the initial snapshot request and for inbound actions.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a mux,
// start hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// The server binds to loopback by default; UIs may be served from file:// origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.events, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps are not tied to r.Context(): net/http cancels it when the handler
	// returns. The hub and socket errors manage the connection lifetime.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	// The request context cancels the round-trip if the client goes away meanwhile.
	snap, err := requestSnapshot(r.Context(), s.events, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "client_id", client.id, "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope("state_init", time.Time{}, wsStateInit{ClientID: client.id, StateSnapshot: snap})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}

	// Enqueue init message; if client is already slow, disconnect.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted StateBroadcast events, marshals them, and broadcasts
// them to all hub clients. Intended to run as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	// Rate-limit telemetry: flush the latest pending sample per device at most once
	// every wsTelemetryCoalesceWindow, even if samples keep arriving.
	pending := make(map[string]wsOutboundEvent)
	var order []string
	var timer *time.Timer
	var timerCh <-chan time.Time

	emit := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev.Type, ev.At, ev.Data)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		for _, key := range order {
			emit(pending[key])
		}
		clear(pending)
		order = order[:0]
	}

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerCh:
			flushPending()
			timer = nil
			timerCh = nil

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.coalesceKey != "" {
				if _, seen := pending[ev.coalesceKey]; !seen {
					order = append(order, ev.coalesceKey)
				}
				pending[ev.coalesceKey] = ev
				if timer == nil {
					timer = time.NewTimer(wsTelemetryCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			// Keep telemetry ahead of the event that followed it.
			flushPending()
			stopTimer()
			emit(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastGesture:
		return wsOutboundEvent{Type: "gesture", Data: gestureData(ev.Device, ev.Gesture), At: ev.At}, true

	case BroadcastUIPhaseChanged:
		return wsOutboundEvent{
			Type: "ui_phase_changed",
			Data: wsUIPhaseData{Active: ev.Active, Slot: ev.Slot, ReleaseConfirm: ev.ReleaseConfirm},
			At:   ev.At,
		}, true

	case BroadcastSettingsChanged:
		return wsOutboundEvent{
			Type: "settings_changed",
			Data: wsSettingsData{Enabled: ev.Enabled, RequiredFingers: ev.RequiredFingers},
			At:   ev.At,
		}, true

	case BroadcastDeviceChanged:
		return wsOutboundEvent{
			Type: "device_changed",
			Data: wsDeviceData{Device: ev.Device, Attached: ev.Attached, Error: ev.Error},
			At:   ev.At,
		}, true

	case BroadcastAccumulator:
		return wsOutboundEvent{
			Type:        "accumulator",
			Data:        wsAccumulatorData{Device: ev.Device, Accumulator: ev.Accumulator},
			At:          ev.At,
			coalesceKey: ev.Device,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}

func gestureData(device string, g GestureEvent) wsGestureData {
	d := wsGestureData{Device: device, Gesture: g.Name()}
	switch g := g.(type) {
	case ShowOrCycle:
		slot := g.Slot
		d.Slot = &slot
	case Cycle:
		d.Direction = g.Direction.String()
		d.AllowWrap = g.AllowWrap
	}
	return d
}
