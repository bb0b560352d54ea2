package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

func (o *Orchestrator) Join(ctx context.Context, id domain.RoomID, req rules.JoinRequest) error {
	return o.mutate(ctx, id, "join", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanJoin(r, req, o.now())
	})
}

// Leave detaches one session. Unknown members and sessions are a no-op.
func (o *Orchestrator) Leave(ctx context.Context, id domain.RoomID, uid domain.UserID, sid core.SessionID) error {
	return o.mutate(ctx, id, "leave", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanDetach(r, uid, sid), nil
	})
}

func (o *Orchestrator) ToggleSection(ctx context.Context, id domain.RoomID, req rules.JoinRequest, event rules.SectionEvent) error {
	return o.mutate(ctx, id, "toggle", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanToggleSection(r, req, event, o.now(), o.token())
	})
}

// ClearUsers resets target, or every member when target is empty.
func (o *Orchestrator) ClearUsers(ctx context.Context, id domain.RoomID, caller, target domain.UserID) error {
	return o.mutate(ctx, id, "clear_users", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanClearUsers(r, caller, target, o.now(), o.token())
	})
}

func (o *Orchestrator) ClearEstimate(ctx context.Context, id domain.RoomID, caller, target domain.UserID) error {
	return o.mutate(ctx, id, "clear_vote", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanClearEstimate(r, caller, target)
	})
}

func (o *Orchestrator) ChangeFacilitator(ctx context.Context, id domain.RoomID, caller, to domain.UserID) error {
	return o.mutate(ctx, id, "change_facilitator", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanChangeFacilitator(r, caller, to)
	})
}

func (o *Orchestrator) UpdateProfile(ctx context.Context, id domain.RoomID, p domain.Profile) error {
	return o.mutate(ctx, id, "profile", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanUpdateProfile(r, p)
	})
}

// ReplaceReport tells which rooms took the new identity. Rooms listed in
// Failed keep the old entry; calling ReplaceIdentity again retries them.
type ReplaceReport struct {
	Replaced []domain.RoomID
	Failed   map[domain.RoomID]error
}

// ReplaceIdentity moves every room entry of from onto to. Each room is an
// independent write, so a failure in one room does not undo the others.
// sid and every live connection of from looking at a room stay present in
// that room under to, and those connections are rebound to the new user.
func (o *Orchestrator) ReplaceIdentity(ctx context.Context, from domain.UserID, to domain.Profile, sid core.SessionID) (ReplaceReport, error) {
	report := ReplaceReport{Failed: map[domain.RoomID]error{}}
	if err := from.Validate(); err != nil {
		return report, err
	}
	if err := to.UserID.Validate(); err != nil {
		return report, err
	}
	if from == to.UserID {
		return report, nil
	}

	rooms, err := o.Store.QueryByMember(ctx, from)
	if err != nil {
		return report, err
	}

	live := o.liveSessions(from)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.parallelism())
	for _, room := range rooms {
		id := room.RoomID
		g.Go(func() error {
			err := o.mutate(ctx, id, "replace_identity", func(r *domain.Room) (core.Patch, error) {
				return rules.PlanReplaceIdentity(r, from, to, append([]core.SessionID{sid}, live[id]...)...)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[id] = err
			} else {
				report.Replaced = append(report.Replaced, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	// a connection in a room that kept from stays from until the retry
	for id, sids := range live {
		if _, failed := report.Failed[id]; failed {
			continue
		}
		for _, s := range sids {
			o.Registry.UpdateUser(s, to.UserID)
		}
	}

	errs := make([]error, 0, len(report.Failed))
	for id, err := range report.Failed {
		errs = append(errs, fmt.Errorf("room %s: %w", id, err))
	}
	log.Info().Str("module", "app.orch").
		Str("from", string(from)).Str("to", string(to.UserID)).
		Int("replaced", len(report.Replaced)).Int("failed", len(report.Failed)).
		Msg("identity replaced")
	return report, errors.Join(errs...)
}

// liveSessions groups the local connections of uid by the room they watch.
// Connections not in a room are keyed by the empty room ID.
func (o *Orchestrator) liveSessions(uid domain.UserID) map[domain.RoomID][]core.SessionID {
	out := map[domain.RoomID][]core.SessionID{}
	if o.Registry == nil {
		return out
	}
	for _, s := range o.Registry.SessionsOf(uid) {
		id, _, _ := o.Registry.RoomOf(s.SID)
		out[id] = append(out[id], s.SID)
	}
	return out
}
