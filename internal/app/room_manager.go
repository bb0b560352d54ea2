package app

import (
	"context"
	"sync"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
)

// EncodeFunc renders a snapshot into the frame pushed to every listener.
type EncodeFunc func(core.Snapshot) (core.Frame, error)

// roomFeed shares one store subscription among all local listeners of a room.
type roomFeed struct {
	id     domain.RoomID
	sub    core.Subscription
	mu     sync.Mutex
	conns  map[core.SessionID]core.SignalConnection
	latest core.Frame
}

type RoomInfo struct {
	RoomID    domain.RoomID `json:"roomID"`
	Listeners int           `json:"listeners"`
}

type RoomManager struct {
	Store    core.DocumentStore
	Registry *Registry
	Policy   Policy
	Encode   EncodeFunc
	// OnSnapshot runs on the feed goroutine after listeners were served.
	OnSnapshot func(core.Snapshot)

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomFeed
}

func NewRoomManager(store core.DocumentStore, reg *Registry, policy Policy, encode EncodeFunc) *RoomManager {
	return &RoomManager{
		Store:    store,
		Registry: reg,
		Policy:   policy,
		Encode:   encode,
		rooms:    make(map[domain.RoomID]*roomFeed),
	}
}

// Attach adds conn as a listener of the room, subscribing to the store on
// first use. The latest known frame is sent right away.
func (m *RoomManager) Attach(ctx context.Context, id domain.RoomID, sid core.SessionID, conn core.SignalConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.rooms[id]
	if !ok {
		sub, err := m.Store.Subscribe(context.WithoutCancel(ctx), id)
		if err != nil {
			return err
		}
		f = &roomFeed{
			id:    id,
			sub:   sub,
			conns: make(map[core.SessionID]core.SignalConnection),
		}
		m.rooms[id] = f
		go m.run(f)
		log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("feed started")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[sid] = conn
	if f.latest != nil {
		_ = conn.TrySend(f.latest)
	}
	return nil
}

// Detach removes a listener and drops the feed with its last listener.
func (m *RoomManager) Detach(id domain.RoomID, sid core.SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rooms[id]
	if !ok {
		return
	}
	f.mu.Lock()
	delete(f.conns, sid)
	empty := len(f.conns) == 0
	f.mu.Unlock()
	if empty {
		m.stopLocked(f)
	}
}

func (m *RoomManager) StopRoom(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.rooms[id]; ok {
		m.stopLocked(f)
	}
}

func (m *RoomManager) stopLocked(f *roomFeed) {
	delete(m.rooms, f.id)
	f.sub.Close()
	log.Info().Str("module", "app.rooms").Str("room_id", string(f.id)).Msg("feed stopped")
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, f := range m.rooms {
		f.mu.Lock()
		out = append(out, RoomInfo{RoomID: id, Listeners: len(f.conns)})
		f.mu.Unlock()
	}
	return out
}

func (m *RoomManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.rooms {
		m.stopLocked(f)
	}
}

func (m *RoomManager) run(f *roomFeed) {
	for snap := range f.sub.C() {
		frame, err := m.Encode(snap)
		if err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("room_id", string(f.id)).Msg("encode snapshot")
			continue
		}

		var slow []core.SessionID
		f.mu.Lock()
		f.latest = frame
		for sid, conn := range f.conns {
			if err := conn.TrySend(frame); err != nil {
				slow = append(slow, sid)
			}
		}
		f.mu.Unlock()

		for _, sid := range slow {
			m.onBackPressure(f.id, sid)
		}
		if m.OnSnapshot != nil {
			m.OnSnapshot(snap)
		}
	}
}

func (m *RoomManager) onBackPressure(id domain.RoomID, sid core.SessionID) {
	if m.Policy == nil {
		return
	}
	switch m.Policy.OnBackPressure(id, sid) {
	case KickMember:
		log.Warn().Str("module", "app.rooms").Str("room_id", string(id)).Str("sid", string(sid)).Msg("kick slow listener")
		if m.Registry != nil {
			m.Registry.Cancel(sid)
		}
	case MarkSlow, DropFrame, NoAction:
	}
}
