package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Poker/internal/adapters/identity"
	"github.com/dkeye/Poker/internal/app/orch"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Blobs   core.BlobStore
	Limiter *RoomRateLimiter
	opts    Options
}

func NewSignalWSController(o *orch.Orchestrator, blobs core.BlobStore, limiter *RoomRateLimiter, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &SignalWSController{Orch: o, Blobs: blobs, Limiter: limiter, opts: opts}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// client is the per-connection state owned by the read pump.
type client struct {
	sid     core.SessionID
	room    domain.RoomID
	profile domain.Profile
	conn    *WsSignalConn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades GET /api/rooms/:id/ws. ctx is the server lifetime;
// the request context ends as soon as the upgrade returns. A room that is
// gone by the time the socket opens gets a not_found error frame.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id, ok := identity.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	roomID := domain.RoomID(c.Param("id"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	cl := &client{
		sid:     core.NewSessionID(),
		room:    roomID,
		profile: id.Profile,
		conn: &WsSignalConn{
			conn: ws,
			send: make(chan core.Frame, ctl.opts.SendBuffer),
		},
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room_id", string(roomID)).Str("user_id", string(id.UserID())).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Enter(ctx, roomID, id.UserID(), cl.sid, cl.conn, cancel); err != nil {
		cancel()
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteJSON(errorFrame{Type: "error", Error: ErrorCode(err)})
		cl.conn.Close()
		return
	}
	go ctl.writePump(ctx, cl.conn)
	go ctl.readPump(ctx, cancel, cl)
}
