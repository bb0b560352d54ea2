package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

// Cast sets the caller's estimate; nil withdraws it.
func (o *Orchestrator) Cast(ctx context.Context, id domain.RoomID, uid domain.UserID, point *string) error {
	return o.mutate(ctx, id, "vote", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanCast(r, uid, point)
	})
}

func (o *Orchestrator) Reveal(ctx context.Context, id domain.RoomID, caller domain.UserID) error {
	return o.mutate(ctx, id, "reveal", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanReveal(r, caller, o.now(), o.token())
	})
}

func (o *Orchestrator) NextIssue(ctx context.Context, id domain.RoomID, caller domain.UserID) error {
	return o.mutate(ctx, id, "next_issue", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanNextIssue(r, caller, o.now(), o.token())
	})
}

// Flip requests status; asking for the current status writes nothing.
func (o *Orchestrator) Flip(ctx context.Context, id domain.RoomID, caller domain.UserID, status domain.EstimateStatus) error {
	return o.mutate(ctx, id, "flip", func(r *domain.Room) (core.Patch, error) {
		return rules.PlanFlip(r, caller, status, o.now(), o.token())
	})
}

// AutoReveal reveals on behalf of the room once every active voter cast.
func (o *Orchestrator) AutoReveal(ctx context.Context, id domain.RoomID) error {
	var fired bool
	err := o.mutate(ctx, id, "auto_reveal", func(r *domain.Room) (core.Patch, error) {
		p, err := rules.PlanAutoReveal(r, o.now(), o.token())
		fired = !p.Empty()
		return p, err
	})
	if err == nil && fired {
		log.Info().Str("module", "app.orch").Str("room_id", string(id)).Msg("auto revealed")
	}
	return err
}
