package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

// Enter binds a live connection to a room and starts pushing snapshots to
// it. It does not join the roster; the client sends join for that.
func (o *Orchestrator) Enter(
	ctx context.Context,
	id domain.RoomID,
	uid domain.UserID,
	sid core.SessionID,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) error {
	if _, err := o.Store.Get(ctx, id); err != nil {
		return err
	}
	o.Registry.Bind(sid, uid, conn, cancel)
	o.Registry.UpdateRoom(sid, id)
	if err := o.Rooms.Attach(ctx, id, sid, conn); err != nil {
		o.Registry.Unbind(sid)
		return err
	}
	log.Info().Str("module", "app.orch").Str("room_id", string(id)).Str("sid", string(sid)).Str("user_id", string(uid)).Msg("entered room")
	return nil
}

// OnDisconnect is called once the connection of sid is gone. The session is
// removed from the roster best effort; a failed leave leaves a ghost entry
// until someone clears it.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	id, uid, ok := o.Registry.RoomOf(sid)
	if ok {
		o.Rooms.Detach(id, sid)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.Leave(ctx, id, uid, sid); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("room_id", string(id)).Str("sid", string(sid)).Msg("leave on disconnect failed")
		}
		cancel()
	}
	o.Registry.Unbind(sid)
}

// EvictRoom drops every local listener of a room that no longer exists.
func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	for _, snap := range o.Registry.MembersOfRoom(id) {
		o.Registry.RemoveRoom(snap.SID)
		o.Registry.Cancel(snap.SID)
	}
	o.Rooms.StopRoom(id)
	log.Info().Str("module", "app.orch").Str("room_id", string(id)).Msg("room evicted")
}
