// Package orch turns user intents into room document patches: read the
// latest snapshot, let a planner from rules validate and build the patch,
// commit it through the store. It holds no lock across requests; the store
// makes each single patch atomic.
package orch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/app"
	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

const defaultParallelism = 4

type Orchestrator struct {
	Store    core.DocumentStore
	Registry *app.Registry
	Rooms    *app.RoomManager

	Now       func() time.Time
	NewToken  func() string
	NewRoomID func() domain.RoomID
	// Parallelism bounds the per-room writes of one ReplaceIdentity.
	Parallelism int
	// AutoRevealTimeout bounds the write issued from a feed goroutine.
	AutoRevealTimeout time.Duration
}

func New(store core.DocumentStore, reg *app.Registry, rooms *app.RoomManager) *Orchestrator {
	o := &Orchestrator{
		Store:    store,
		Registry: reg,
		Rooms:    rooms,
	}
	if rooms != nil {
		rooms.OnSnapshot = o.OnSnapshot
	}
	return o
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) token() string {
	if o.NewToken != nil {
		return o.NewToken()
	}
	return rules.NewRoundToken()
}

func (o *Orchestrator) roomID() domain.RoomID {
	if o.NewRoomID != nil {
		return o.NewRoomID()
	}
	return domain.RoomID(uuid.NewString())
}

func (o *Orchestrator) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return defaultParallelism
}

// planner builds a patch against the snapshot it is handed. A nil patch with
// a nil error means there is nothing to write.
type planner func(r *domain.Room) (core.Patch, error)

// mutate is the one write path: the patch is planned against the latest
// snapshot, and concurrent writers on other fields are not serialised.
func (o *Orchestrator) mutate(ctx context.Context, id domain.RoomID, op string, plan planner) error {
	r, err := o.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	p, err := plan(r)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("room_id", string(id)).Str("op", op).Msg("rejected")
		return err
	}
	if p.Empty() {
		return nil
	}
	p = append(p, core.Set("updatedAt", o.now()))
	if err := o.Store.Update(ctx, id, p); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("room_id", string(id)).Str("op", op).Msg("commit failed")
		return err
	}
	log.Debug().Str("module", "app.orch").Str("room_id", string(id)).Str("op", op).Strs("paths", p.Paths()).Msg("committed")
	return nil
}

// OnSnapshot reacts to every snapshot a local feed receives: deleted rooms
// are evicted, complete rounds are auto-revealed.
func (o *Orchestrator) OnSnapshot(snap core.Snapshot) {
	if !snap.Exists() {
		o.EvictRoom(snap.RoomID)
		return
	}
	if !rules.ShouldAutoReveal(snap.Room) {
		return
	}
	timeout := o.AutoRevealTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.AutoReveal(ctx, snap.RoomID); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("room_id", string(snap.RoomID)).Msg("auto reveal failed")
	}
}
