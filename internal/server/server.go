// Package server exposes a Controller to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	queueSize      = 64
)

// Server relays binding requests from websocket clients to a Controller.
type Server struct {
	ctrl     *ptz.Controller
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
}

// Client is one websocket connection and the sessions it opened.
type Client struct {
	conn   *websocket.Conn
	server *Server
	log    *logrus.Entry
	send   chan []byte
	queue  chan *protocol.Message

	mu       sync.Mutex
	closed   bool
	sessions map[string]*ptz.Session

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func New(ctrl *ptz.Controller, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		ctrl: ctrl,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*Client]bool),
	}
}

// Handler serves the websocket endpoint on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:     conn,
		server:   s,
		log:      s.log.WithField("remote", conn.RemoteAddr().String()),
		send:     make(chan []byte, 256),
		queue:    make(chan *protocol.Message, queueSize),
		sessions: make(map[string]*ptz.Session),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()
	client.log.Info("client connected")

	client.inflight.Add(1)
	go client.processPump()
	go client.writePump()
	go client.readPump()
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	// readPump sees the closed connection and releases the client.
	for _, c := range clients {
		c.conn.Close()
	}
}

func (c *Client) readPump() {
	defer c.shutdown()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", protocol.ErrInvalidMessage, "malformed message")
			continue
		}

		c.queue <- &msg
	}
}

// processPump handles a client's requests one at a time in arrival order, so
// a stop sent after a start is never applied first.
func (c *Client) processPump() {
	defer c.inflight.Done()
	for msg := range c.queue {
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *protocol.Message) {
	if msg.Type == protocol.TypeListDevices {
		c.listDevices(msg)
		return
	}
	if msg.Type == protocol.TypeGetCamera {
		c.getCamera(msg)
		return
	}

	var h protocol.HandlePayload
	if err := msg.ParsePayload(&h); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	session := c.session(h.Handle)
	if session == nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "unknown handle")
		return
	}

	switch msg.Type {
	case protocol.TypeRelease:
		c.release(msg, h.Handle)
	case protocol.TypeGetCapabilities:
		c.getCapabilities(msg, session)
	case protocol.TypeGetAbsoluteZoom:
		c.getAbsoluteZoom(msg, session)
	case protocol.TypeAbsoluteZoom:
		c.absoluteZoom(msg, session)
	case protocol.TypeGetRelativeZoom:
		c.getRelativeZoom(msg, session)
	case protocol.TypeRelativeZoom:
		c.relativeZoom(msg, session)
	case protocol.TypeGetAbsolutePanTilt:
		c.getAbsolutePanTilt(msg, session)
	case protocol.TypeAbsolutePanTilt:
		c.absolutePanTilt(msg, session)
	case protocol.TypeGetRelativePanTilt:
		c.getRelativePanTilt(msg, session)
	case protocol.TypeRelativePanTilt:
		c.relativePanTilt(msg, session)
	default:
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "unknown message type "+msg.Type)
	}
}

func (c *Client) session(handle string) *ptz.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[handle]
}

func (c *Client) listDevices(msg *protocol.Message) {
	devices, err := c.server.ctrl.ListDevices()
	if err != nil {
		c.replyError(msg, err)
		return
	}
	payload := protocol.DevicesPayload{Devices: make([]protocol.Device, 0, len(devices))}
	for _, d := range devices {
		payload.Devices = append(payload.Devices, protocol.Device{
			VendorID:     d.VendorID,
			ProductID:    d.ProductID,
			BusAddress:   d.BusAddress,
			Manufacturer: d.Manufacturer,
			Product:      d.Product,
			SerialNumber: d.Serial,
		})
	}
	c.reply(msg, payload)
}

func (c *Client) getCamera(msg *protocol.Message) {
	var req protocol.GetCameraPayload
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	session, err := c.server.ctrl.Open(req.VendorID, req.ProductID)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	handle := session.ID().String()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.Close()
		return
	}
	c.sessions[handle] = session
	c.mu.Unlock()

	c.reply(msg, protocol.HandlePayload{Handle: handle})
}

func (c *Client) release(msg *protocol.Message, handle string) {
	c.mu.Lock()
	session := c.sessions[handle]
	delete(c.sessions, handle)
	c.mu.Unlock()
	if session == nil {
		c.reply(msg, nil)
		return
	}
	if err := session.Close(); err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, nil)
}

func (c *Client) getCapabilities(msg *protocol.Message, s *ptz.Session) {
	caps, err := s.Capabilities(c.ctx)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, protocol.CapabilitiesPayload{
		AbsoluteZoom:    caps.AbsoluteZoom,
		RelativeZoom:    caps.RelativeZoom,
		AbsolutePanTilt: caps.AbsolutePanTilt,
		RelativePanTilt: caps.RelativePanTilt,
		AbsoluteRoll:    caps.AbsoluteRoll,
		RelativeRoll:    caps.RelativeRoll,
	})
}

func (c *Client) getAbsoluteZoom(msg *protocol.Message, s *ptz.Session) {
	r, err := s.GetAbsoluteZoom(c.ctx)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, protocol.AbsoluteZoomStatePayload{
		Min:        r.Min,
		Max:        r.Max,
		Resolution: r.Resolution,
		Current:    r.Current,
		Default:    r.Default,
	})
}

func (c *Client) absoluteZoom(msg *protocol.Message, s *ptz.Session) {
	var req protocol.AbsoluteZoomPayload
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	c.replyResult(msg, s.AbsoluteZoom(c.ctx, req.Zoom))
}

func (c *Client) getRelativeZoom(msg *protocol.Message, s *ptz.Session) {
	r, err := s.GetRelativeZoom(c.ctx)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, protocol.RelativeZoomStatePayload{
		Direction:       int8(r.Direction),
		DigitalZoom:     r.DigitalZoom,
		MinSpeed:        r.Speed.Min,
		MaxSpeed:        r.Speed.Max,
		ResolutionSpeed: r.Speed.Resolution,
		CurrentSpeed:    r.Speed.Current,
	})
}

func (c *Client) relativeZoom(msg *protocol.Message, s *ptz.Session) {
	var req protocol.RelativeZoomPayload
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	c.replyResult(msg, s.RelativeZoom(c.ctx, ptz.Direction(req.Direction), req.Speed))
}

func (c *Client) getAbsolutePanTilt(msg *protocol.Message, s *ptz.Session) {
	r, err := s.GetAbsolutePanTilt(c.ctx)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, protocol.AbsolutePanTiltStatePayload{
		MinPan:         r.Pan.Min,
		MinTilt:        r.Tilt.Min,
		MaxPan:         r.Pan.Max,
		MaxTilt:        r.Tilt.Max,
		ResolutionPan:  r.Pan.Resolution,
		ResolutionTilt: r.Tilt.Resolution,
		CurrentPan:     r.Pan.Current,
		CurrentTilt:    r.Tilt.Current,
		DefaultPan:     r.Pan.Default,
		DefaultTilt:    r.Tilt.Default,
	})
}

func (c *Client) absolutePanTilt(msg *protocol.Message, s *ptz.Session) {
	var req protocol.AbsolutePanTiltPayload
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	c.replyResult(msg, s.AbsolutePanTilt(c.ctx, req.Pan, req.Tilt))
}

func (c *Client) getRelativePanTilt(msg *protocol.Message, s *ptz.Session) {
	r, err := s.GetRelativePanTilt(c.ctx)
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, protocol.RelativePanTiltStatePayload{
		PanDirection:        int8(r.PanDirection),
		TiltDirection:       int8(r.TiltDirection),
		MinPanSpeed:         r.PanSpeed.Min,
		MinTiltSpeed:        r.TiltSpeed.Min,
		MaxPanSpeed:         r.PanSpeed.Max,
		MaxTiltSpeed:        r.TiltSpeed.Max,
		ResolutionPanSpeed:  r.PanSpeed.Resolution,
		ResolutionTiltSpeed: r.TiltSpeed.Resolution,
		DefaultPanSpeed:     r.PanSpeed.Default,
		DefaultTiltSpeed:    r.TiltSpeed.Default,
		CurrentPanSpeed:     r.PanSpeed.Current,
		CurrentTiltSpeed:    r.TiltSpeed.Current,
	})
}

func (c *Client) relativePanTilt(msg *protocol.Message, s *ptz.Session) {
	var req protocol.RelativePanTiltPayload
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, protocol.ErrInvalidMessage, "invalid payload")
		return
	}
	c.replyResult(msg, s.RelativePanTilt(c.ctx,
		ptz.Direction(req.PanDirection), req.PanSpeed,
		ptz.Direction(req.TiltDirection), req.TiltSpeed))
}

func (c *Client) replyResult(msg *protocol.Message, err error) {
	if err != nil {
		c.replyError(msg, err)
		return
	}
	c.reply(msg, nil)
}

func (c *Client) reply(msg *protocol.Message, payload any) {
	out, err := protocol.NewMessage(msg.Type, msg.ID, payload)
	if err != nil {
		c.log.WithError(err).Error("failed to encode reply")
		return
	}
	c.sendMessage(out)
}

func (c *Client) replyError(msg *protocol.Message, err error) {
	c.log.WithError(err).WithField("type", msg.Type).Debug("request failed")
	c.sendError(msg.ID, ErrorCode(err), err.Error())
}

func (c *Client) sendError(id, code, message string) {
	out, err := protocol.NewMessage(protocol.TypeError, id, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.sendMessage(out)
}

func (c *Client) sendMessage(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.WithError(err).Error("failed to marshal message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("client send buffer full, dropping message")
	}
}

// shutdown cancels the client's in-flight requests and releases every session
// it opened. Only readPump calls it, after its last send on queue.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[string]*ptz.Session)
	c.mu.Unlock()

	c.cancel()
	for handle, s := range sessions {
		if err := s.Close(); err != nil {
			c.log.WithError(err).WithField("handle", handle).Warn("failed to release session")
		}
	}
	close(c.queue)
	c.inflight.Wait()
	close(c.send)
	c.server.removeClient(c)
	c.log.Info("client disconnected")
}

// ErrorCode maps an engine error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ptz.ErrDeviceNotFound):
		return protocol.ErrDeviceNotFound
	case errors.Is(err, ptz.ErrDeviceBusy):
		return protocol.ErrDeviceBusy
	case errors.Is(err, ptz.ErrUnsupportedDevice):
		return protocol.ErrUnsupportedDevice
	case errors.Is(err, ptz.ErrUnsupportedOperation):
		return protocol.ErrUnsupportedOperation
	case errors.Is(err, ptz.ErrOutOfRange):
		return protocol.ErrOutOfRange
	case errors.Is(err, ptz.ErrDeviceTimeout):
		return protocol.ErrDeviceTimeout
	case errors.Is(err, ptz.ErrOperationCancelled), errors.Is(err, ptz.ErrSessionClosed):
		return protocol.ErrOperationCancelled
	}
	return protocol.ErrIO
}
