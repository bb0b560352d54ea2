package app

import (
	"context"
	"sync"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry tracks live connections of this process: who is behind a session
// and which room it is looking at.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) Bind(
	sid core.SessionID,
	uid domain.UserID,
	conn core.SignalConnection,
	cancel context.CancelFunc,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		UserID: uid,
		Conn:   conn,
		Cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user_id", string(uid)).Msg("bound session")
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) UserOf(sid core.SessionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.UserID, true
	}
	return "", false
}

// UpdateUser rebinds a live connection after its identity was upgraded.
func (r *Registry) UpdateUser(sid core.SessionID, uid domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.UserID = uid
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user_id", string(uid)).Msg("updated user")
	return true
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", "", false
	}
	return entry.RoomID, entry.UserID, true
}

func (r *Registry) UpdateRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomID = roomID
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room_id", string(roomID)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.RoomID = ""
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed room association")
}

type RegSnap struct {
	SID    core.SessionID
	UserID domain.UserID
	Conn   core.SignalConnection
}

func (r *Registry) MembersOfRoom(id domain.RoomID) []RegSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.RoomID == id {
			out = append(out, RegSnap{SID: sid, UserID: e.UserID, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) SessionsOf(uid domain.UserID) []RegSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RegSnap
	for sid, e := range r.sessions {
		if e.UserID == uid {
			out = append(out, RegSnap{SID: sid, UserID: e.UserID, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
