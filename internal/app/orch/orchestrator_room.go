package orch

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

// CreateRoom stores a fresh room with creator as its facilitator. sid may be
// empty when the room is created outside a live connection.
func (o *Orchestrator) CreateRoom(ctx context.Context, name string, creator domain.Profile, sid core.SessionID) (*domain.Room, error) {
	r, err := rules.BuildRoom(o.roomID(), name, creator, sid, o.token(), o.now())
	if err != nil {
		return nil, err
	}
	if err := o.Store.Put(ctx, r); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("room_id", string(r.RoomID)).Str("user_id", string(creator.UserID)).Msg("room created")
	return r, nil
}

func (o *Orchestrator) GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return o.Store.Get(ctx, id)
}

// MyRooms lists rooms the user is a member of, most recently active first.
func (o *Orchestrator) MyRooms(ctx context.Context, uid domain.UserID) ([]*domain.Room, error) {
	if err := uid.Validate(); err != nil {
		return nil, err
	}
	rooms, err := o.Store.QueryByMember(ctx, uid)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

func (o *Orchestrator) DeleteRoom(ctx context.Context, id domain.RoomID, caller domain.UserID) error {
	r, err := o.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rules.CanDeleteRoom(r, caller); err != nil {
		return err
	}
	if err := o.Store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("room_id", string(id)).Str("user_id", string(caller)).Msg("room deleted")
	return nil
}

func (o *Orchestrator) RenameRoom(ctx context.Context, id domain.RoomID, caller domain.UserID, name string) error {
	return o.mutate(ctx, id, "rename", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanRenameRoom(r, caller, name)
	})
}

func (o *Orchestrator) SetIssueName(ctx context.Context, id domain.RoomID, caller domain.UserID, name string) error {
	return o.mutate(ctx, id, "issue", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanSetIssueName(r, caller, name)
	})
}

func (o *Orchestrator) UpdateOptions(ctx context.Context, id domain.RoomID, caller domain.UserID, u rules.OptionsUpdate) error {
	return o.mutate(ctx, id, "options", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanUpdateOptions(r, caller, u)
	})
}
