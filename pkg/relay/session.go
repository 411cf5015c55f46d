package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"github.com/teslashibe/go-mindwell/internal/metrics"
)

const (
	dirClientToUpstream = "client_to_upstream"
	dirUpstreamToClient = "upstream_to_client"
)

// session is one RelayPair: a client leg, an upstream leg and the lifecycle
// that binds them. It is owned by the handler goroutine that created it.
type session struct {
	id     string
	relay  *Relay
	cfg    *Config
	logger *slog.Logger

	client   *websocket.Conn
	clientMu sync.Mutex // serializes client writes

	upstreamMu sync.Mutex // guards upstream, clientGone and upstream writes
	upstream   *gws.Conn
	clientGone bool

	// ready is closed once upstream is set and the pair is bridged.
	ready chan struct{}

	state        atomic.Int32
	reason       atomic.Value
	lastActivity atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	opened time.Time
}

func newSession(r *Relay, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &session{
		id:     id,
		relay:  r,
		cfg:    r.config,
		logger: r.logger.With("session", id),
		client: conn,
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		opened: time.Now(),
	}
	s.touch()
	return s
}

func (s *session) run() {
	s.relay.active.Add(1)
	s.relay.total.Add(1)
	metrics.RelayActiveSessions.Inc()
	defer func() {
		s.relay.active.Add(-1)
		metrics.RelayActiveSessions.Dec()
	}()

	s.transition(StateClientConnecting, "")
	s.client.SetReadLimit(s.cfg.MaxMessageSize)
	s.transition(StateClientOpenUpstreamPending, "")

	s.wg.Add(1)
	go s.upstreamLoop()

	if s.cfg.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.watchIdle()
	}

	s.clientLoop()

	// Abort a dial still in flight and wait for the helpers; the client
	// connection must not be touched after run returns.
	s.cancel()
	s.wg.Wait()

	reason, _ := s.reason.Load().(string)
	s.transition(StateClosed, reason)
	metrics.RelaySessionsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("relay session closed",
		"reason", reason,
		"duration", time.Since(s.opened).Round(time.Millisecond),
	)
}

// clientLoop forwards client frames upstream until the client leg ends.
func (s *session) clientLoop() {
	for {
		mt, data, err := s.client.ReadMessage()
		if err != nil {
			s.onClientGone(err)
			return
		}
		s.touch()

		select {
		case <-s.ready:
		default:
			s.logger.Debug("client frame before upstream ready", "bytes", len(data))
			s.sendControl(Error(MsgNotReady))
			continue
		}

		if st := s.State(); st != StateBridged {
			s.logger.Debug("client frame after bridge ended", "state", st, "bytes", len(data))
			continue
		}

		if err := s.writeUpstream(mt, data); err != nil {
			s.logger.Warn("upstream write failed", "error", err)
			if s.beginClosing(ReasonUpstreamError) {
				s.sendControl(Error(MsgUpstreamError))
				s.closeUpstream(gws.CloseInternalServerErr)
				s.closeClient(websocket.CloseInternalServerErr)
			}
			continue
		}
		countFrame(dirClientToUpstream, mt, len(data))
	}
}

// onClientGone propagates the end of the client leg to upstream.
func (s *session) onClientGone(err error) {
	code := gws.CloseNormalClosure
	reason := ReasonClientClosed
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		code = gws.CloseInternalServerErr
		reason = ReasonClientError
	}

	if !s.beginClosing(reason) {
		return
	}
	s.logger.Debug("client leg ended", "error", err, "upstream_code", code)
	s.closeUpstream(code)
}

// upstreamLoop dials upstream, bridges the pair, then forwards upstream
// frames to the client until the upstream leg ends.
func (s *session) upstreamLoop() {
	defer s.wg.Done()

	conn, ok := s.dial()
	if !ok {
		return
	}

	s.upstreamMu.Lock()
	if s.clientGone {
		s.upstreamMu.Unlock()
		closeGorilla(conn, gws.CloseNormalClosure, s.cfg.WriteTimeout)
		return
	}
	s.upstream = conn
	s.upstreamMu.Unlock()

	if !s.transition(StateBridged, "") {
		// Closing won the race; closeUpstream already saw s.upstream.
		return
	}
	close(s.ready)
	s.sendControl(Connected())
	s.logger.Info("relay bridged", "ip", s.client.IP())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.onUpstreamGone(err)
			return
		}
		s.touch()

		if err := s.writeClient(mt, data); err != nil {
			s.logger.Debug("client write failed", "error", err)
			if s.beginClosing(ReasonClientError) {
				s.closeUpstream(gws.CloseInternalServerErr)
				s.closeClient(websocket.CloseInternalServerErr)
			}
			return
		}
		countFrame(dirUpstreamToClient, mt, len(data))
	}
}

// dial opens the upstream leg. On failure the client is told and closed.
func (s *session) dial() (*gws.Conn, bool) {
	target, err := s.relay.upstreamURL()
	if err != nil {
		s.logger.Error("invalid upstream url", "error", err)
		s.failDial()
		return nil, false
	}

	s.relay.upstreamDials.Add(1)
	start := time.Now()
	conn, resp, err := s.relay.dialer.DialContext(s.ctx, target, s.relay.upstreamHeader())
	metrics.RelayUpstreamDialSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, false
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		s.logger.Warn("upstream dial failed", "error", err, "status", status)
		s.failDial()
		return nil, false
	}

	conn.SetReadLimit(s.cfg.MaxMessageSize)
	return conn, true
}

func (s *session) failDial() {
	if s.beginClosing(ReasonDialFailed) {
		s.sendControl(Error(MsgUpstreamError))
		s.closeClient(websocket.CloseInternalServerErr)
	}
}

// onUpstreamGone propagates the end of the upstream leg to the client.
func (s *session) onUpstreamGone(err error) {
	normal := gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway, gws.CloseNoStatusReceived)
	reason := ReasonUpstreamError
	if normal {
		reason = ReasonUpstreamClosed
	}

	if !s.beginClosing(reason) {
		return
	}
	s.logger.Debug("upstream leg ended", "error", err)

	if normal {
		s.sendControl(Info(MsgUpstreamClosed))
		s.closeUpstream(gws.CloseNormalClosure)
		s.closeClient(websocket.CloseNormalClosure)
		return
	}
	s.sendControl(Error(MsgUpstreamError))
	s.closeUpstream(gws.CloseInternalServerErr)
	s.closeClient(websocket.CloseInternalServerErr)
}

// watchIdle closes the pair when no frame moved for IdleTimeout.
func (s *session) watchIdle() {
	defer s.wg.Done()

	tick := s.cfg.IdleTimeout / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, s.lastActivity.Load()))
			if idle < s.cfg.IdleTimeout {
				continue
			}
			if s.beginClosing(ReasonIdleTimeout) {
				s.logger.Info("relay idle timeout", "idle", idle.Round(time.Millisecond))
				s.sendControl(Info(MsgIdleTimeout))
				s.closeUpstream(gws.CloseNormalClosure)
				s.closeClient(websocket.CloseNormalClosure)
			}
			return
		}
	}
}

func (s *session) writeUpstream(mt int, data []byte) error {
	s.upstreamMu.Lock()
	defer s.upstreamMu.Unlock()
	s.upstream.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.upstream.WriteMessage(mt, data)
}

func (s *session) writeClient(mt int, data []byte) error {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	s.client.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.client.WriteMessage(mt, data)
}

func (s *session) sendControl(m ControlMessage) {
	if err := s.writeClient(websocket.TextMessage, m.Bytes()); err != nil {
		s.logger.Debug("control message not delivered", "type", m.Type, "error", err)
	}
}

// closeUpstream sends a close frame upstream and releases the socket. It also
// marks the client as gone so a dial completing later is discarded.
func (s *session) closeUpstream(code int) {
	s.upstreamMu.Lock()
	defer s.upstreamMu.Unlock()
	s.clientGone = true
	if s.upstream != nil {
		closeGorilla(s.upstream, code, s.cfg.WriteTimeout)
	}
	s.cancel()
}

func (s *session) closeClient(code int) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	_ = s.client.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
	_ = s.client.Close()
}

func closeGorilla(conn *gws.Conn, code int, timeout time.Duration) {
	_ = conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(code, ""), time.Now().Add(timeout))
	_ = conn.Close()
}

// State returns the current lifecycle state.
func (s *session) State() State {
	return State(s.state.Load())
}

// transition moves the session forward to next. Moving backwards or staying
// put is refused.
func (s *session) transition(next State, reason string) bool {
	for {
		cur := s.state.Load()
		if int32(next) <= cur {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			s.logger.Debug("relay state", "from", State(cur), "to", next)
			s.relay.emit(Event{
				SessionID: s.id,
				State:     next,
				Reason:    reason,
				Time:      time.Now(),
			})
			return true
		}
	}
}

// beginClosing claims the closing transition. Only the first caller wins
// and is responsible for tearing down both legs.
func (s *session) beginClosing(reason string) bool {
	if !s.transition(StateClosing, reason) {
		return false
	}
	s.reason.Store(reason)
	return true
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func countFrame(direction string, mt, n int) {
	kind := "text"
	if mt == gws.BinaryMessage {
		kind = "binary"
	}
	metrics.RelayFramesTotal.WithLabelValues(direction, kind).Inc()
	metrics.RelayBytesTotal.WithLabelValues(direction).Add(float64(n))
}
