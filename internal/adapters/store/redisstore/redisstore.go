// Package redisstore keeps room documents in Redis so several server
// processes can share rooms. Each document is a JSON string; commits publish
// the new document on a per-room channel, which is the change feed.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Poker/internal/adapters/store/fanout"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// maxTxRetries bounds optimistic retries of one Update when other writers
// keep touching the same room.
const maxTxRetries = 16

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ core.DocumentStore = (*Store)(nil)

func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// New wraps an existing client. prefix namespaces every key.
func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "poker"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error {
	return transient(s.rdb.Ping(ctx).Err())
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) roomKey(id domain.RoomID) string    { return s.prefix + ":room:" + string(id) }
func (s *Store) memberKey(uid domain.UserID) string { return s.prefix + ":member:" + string(uid) }
func (s *Store) channel(id domain.RoomID) string    { return s.prefix + ":room:" + string(id) + ":events" }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	raw, err := s.rdb.Get(ctx, s.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, transient(err)
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
	return s.commit(ctx, room.RoomID, func(tx *redis.Tx) ([]byte, []domain.UserID, error) {
		return raw, decoded.MemberIDs(), nil
	})
}

func (s *Store) Update(ctx context.Context, id domain.RoomID, patch core.Patch) error {
	return s.commit(ctx, id, func(tx *redis.Tx) ([]byte, []domain.UserID, error) {
		raw, err := tx.Get(ctx, s.roomKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, nil, transient(err)
		}
		out, room, err := core.ApplyJSON(raw, patch)
		if err != nil {
			return nil, nil, err
		}
		return out, room.MemberIDs(), nil
	})
}

// commit runs build inside WATCH on the room key and writes its result with
// MULTI/EXEC, retrying when another writer got there first. The member index
// and the change notification are part of the same transaction.
func (s *Store) commit(ctx context.Context, id domain.RoomID, build func(tx *redis.Tx) ([]byte, []domain.UserID, error)) error {
	key := s.roomKey(id)
	txf := func(tx *redis.Tx) error {
		before, err := s.membersOf(ctx, tx, key)
		if err != nil {
			return err
		}
		out, after, err := build(tx)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			s.reindex(ctx, pipe, id, before, after)
			pipe.Publish(ctx, s.channel(id), out)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("module", "store.redis").Str("room_id", string(id)).Int("attempt", attempt).Msg("tx conflict, retrying")
			continue
		}
		if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrTransient) {
			return err
		}
		return transient(err)
	}
	return fmt.Errorf("%w: room %s: too many write conflicts", domain.ErrTransient, id)
}

func (s *Store) membersOf(ctx context.Context, tx *redis.Tx, key string) ([]domain.UserID, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, transient(err)
	}
	doc, err := core.DecodeDoc(raw)
	if err != nil {
		return nil, err
	}
	return core.MemberKeys(doc), nil
}

func (s *Store) reindex(ctx context.Context, pipe redis.Pipeliner, id domain.RoomID, before, after []domain.UserID) {
	keep := make(map[domain.UserID]bool, len(after))
	for _, uid := range after {
		keep[uid] = true
		pipe.SAdd(ctx, s.memberKey(uid), string(id))
	}
	for _, uid := range before {
		if !keep[uid] {
			pipe.SRem(ctx, s.memberKey(uid), string(id))
		}
	}
}

func (s *Store) Delete(ctx context.Context, id domain.RoomID) error {
	key := s.roomKey(id)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return transient(err)
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		members, err := s.membersOf(ctx, tx, key)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			s.reindex(ctx, pipe, id, members, nil)
			pipe.Publish(ctx, s.channel(id), "")
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrTransient) {
			return err
		}
		return transient(err)
	}
	return fmt.Errorf("%w: room %s: too many write conflicts", domain.ErrTransient, id)
}

// Subscribe confirms the channel subscription before reading the current
// document, so no commit can fall between the two.
func (s *Store) Subscribe(ctx context.Context, id domain.RoomID) (core.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, s.channel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, transient(err)
	}

	initial := core.Snapshot{RoomID: id}
	room, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		_ = ps.Close()
		return nil, err
	default:
		initial.Room = room
	}

	sub := fanout.NewSub(func() { _ = ps.Close() })
	sub.Deliver(initial)
	go s.forward(id, ps, sub)
	return sub, nil
}

func (s *Store) forward(id domain.RoomID, ps *redis.PubSub, sub *fanout.Sub) {
	defer sub.Close()
	for msg := range ps.Channel() {
		snap := core.Snapshot{RoomID: id}
		if msg.Payload != "" {
			room, err := core.UnmarshalRoom([]byte(msg.Payload))
			if err != nil {
				log.Error().Err(err).Str("module", "store.redis").Str("room_id", string(id)).Msg("bad change payload")
				continue
			}
			snap.Room = room
		}
		sub.Deliver(snap)
	}
}

func (s *Store) QueryByMember(ctx context.Context, uid domain.UserID) ([]*domain.Room, error) {
	ids, err := s.rdb.SMembers(ctx, s.memberKey(uid)).Result()
	if err != nil {
		return nil, transient(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.roomKey(domain.RoomID(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, transient(err)
	}
	var out []*domain.Room
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		room, err := core.UnmarshalRoom([]byte(raw))
		if err != nil {
			return nil, err
		}
		if _, ok := room.Member(uid); ok {
			out = append(out, room)
		}
	}
	return out, nil
}
