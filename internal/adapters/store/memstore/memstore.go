// Package memstore is an in-process DocumentStore. Documents live as JSON
// and every update is serialized under one lock.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Poker/internal/adapters/store/fanout"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
)

type Store struct {
	mu     sync.Mutex
	docs   map[domain.RoomID][]byte
	broker *fanout.Broker
}

func New() *Store {
	return &Store{
		docs:   make(map[domain.RoomID][]byte),
		broker: fanout.NewBroker(),
	}
}

var _ core.DocumentStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.Lock()
	raw, ok := s.docs[id]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return core.UnmarshalRoom(raw)
}

func (s *Store) Put(ctx context.Context, room *domain.Room) error {
	if room == nil || room.RoomID == "" {
		return domain.ErrInvalidArgument
	}
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	decoded, err := core.UnmarshalRoom(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[room.RoomID] = raw
	s.broker.Publish(core.Snapshot{RoomID: room.RoomID, Room: decoded})
	log.Debug().Str("module", "store.memory").Str("room_id", string(room.RoomID)).Msg("put")
	return nil
}

func (s *Store) Update(ctx context.Context, id domain.RoomID, patch core.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	out, room, err := core.ApplyJSON(raw, patch)
	if err != nil {
		return err
	}
	s.docs[id] = out
	s.broker.Publish(core.Snapshot{RoomID: id, Room: room})
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.docs, id)
	s.broker.Publish(core.Snapshot{RoomID: id})
	log.Debug().Str("module", "store.memory").Str("room_id", string(id)).Msg("deleted")
	return nil
}

// Subscribe delivers the current document (or a deletion marker) first.
func (s *Store) Subscribe(ctx context.Context, id domain.RoomID) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	initial := core.Snapshot{RoomID: id}
	if raw, ok := s.docs[id]; ok {
		room, err := core.UnmarshalRoom(raw)
		if err != nil {
			return nil, err
		}
		initial.Room = room
	}
	return s.broker.Subscribe(id, initial), nil
}

func (s *Store) QueryByMember(ctx context.Context, uid domain.UserID) ([]*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Room
	for _, raw := range s.docs {
		room, err := core.UnmarshalRoom(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := room.Member(uid); ok {
			out = append(out, room)
		}
	}
	return out, nil
}
