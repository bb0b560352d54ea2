package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Poker/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errUnknownType = errors.New("unknown_type")

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			flush(c)
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// flush writes whatever is already queued, so a final frame such as
// room_deleted still reaches the client before the socket closes.
func flush(c *WsSignalConn) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump closing")
		cancel()
		cl.conn.Close()
		ctl.Orch.OnDisconnect(cl.sid)
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.conn.SetPongHandler(func(string) error {
		return cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Msg("readPump read error")
			}
			return
		}
		_ = cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(ctx, cl, data)
	}
}

type handler func(ctl *SignalWSController, ctx context.Context, cl *client, data []byte) error

// mutating handlers count against the per-user rate limit
var handlers = map[string]struct {
	fn       handler
	mutating bool
}{
	"join":               {(*SignalWSController).handleJoin, true},
	"leave":              {(*SignalWSController).handleLeave, true},
	"toggle":             {(*SignalWSController).handleToggle, true},
	"vote":               {(*SignalWSController).handleVote, true},
	"clear_vote":         {(*SignalWSController).handleClearVote, true},
	"reveal":             {(*SignalWSController).handleReveal, true},
	"next_issue":         {(*SignalWSController).handleNextIssue, true},
	"flip":               {(*SignalWSController).handleFlip, true},
	"issue":              {(*SignalWSController).handleIssue, true},
	"rename":             {(*SignalWSController).handleRename, true},
	"options":            {(*SignalWSController).handleOptions, true},
	"clear_users":        {(*SignalWSController).handleClearUsers, true},
	"change_facilitator": {(*SignalWSController).handleChangeFacilitator, true},
	"profile":            {(*SignalWSController).handleProfile, true},
	"whoami":             {(*SignalWSController).handleWhoAmI, false},
	"ping":               {(*SignalWSController).handlePing, false},
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendErr(cl.conn, errBadPayload)
		return
	}

	h, ok := handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendErr(cl.conn, errUnknownType)
		return
	}
	if h.mutating && ctl.Limiter != nil && !ctl.Limiter.Allow(ctl.userOf(cl)) {
		ctl.sendErr(cl.conn, errRateLimited)
		return
	}
	if err := h.fn(ctl, ctx, cl, data); err != nil {
		ctl.sendErr(cl.conn, err)
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendErr(c core.SignalConnection, err error) {
	ctl.sendJSON(c, errorFrame{Type: "error", Error: ErrorCode(err)})
}
