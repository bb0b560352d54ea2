package signal

import (
	"context"

	"github.com/dkeye/Poker/internal/domain"
)

func (ctl *SignalWSController) handleVote(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Point *string `json:"point"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.Cast(ctx, cl.room, ctl.userOf(cl), p.Point)
}

// handleClearVote clears the caller's own estimate unless target names
// someone else.
func (ctl *SignalWSController) handleClearVote(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Target domain.UserID `json:"target"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	caller := ctl.userOf(cl)
	if p.Target == "" {
		p.Target = caller
	}
	return ctl.Orch.ClearEstimate(ctx, cl.room, caller, p.Target)
}

func (ctl *SignalWSController) handleReveal(ctx context.Context, cl *client, _ []byte) error {
	return ctl.Orch.Reveal(ctx, cl.room, ctl.userOf(cl))
}

func (ctl *SignalWSController) handleNextIssue(ctx context.Context, cl *client, _ []byte) error {
	return ctl.Orch.NextIssue(ctx, cl.room, ctl.userOf(cl))
}

func (ctl *SignalWSController) handleFlip(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Status domain.EstimateStatus `json:"status"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.Flip(ctx, cl.room, ctl.userOf(cl), p.Status)
}

func (ctl *SignalWSController) handleIssue(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.SetIssueName(ctx, cl.room, ctl.userOf(cl), p.Name)
}
