package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
)

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad payload")
		return errBadPayload
	}
	return nil
}

// userOf is the user currently behind the connection; it changes when the
// identity is upgraded while the socket is open.
func (ctl *SignalWSController) userOf(cl *client) domain.UserID {
	if uid, ok := ctl.Orch.Registry.UserOf(cl.sid); ok {
		return uid
	}
	return cl.profile.UserID
}

func (ctl *SignalWSController) joinRequest(cl *client, spectator bool) rules.JoinRequest {
	p := cl.profile
	p.UserID = ctl.userOf(cl)
	return rules.JoinRequest{Profile: p, SessionID: cl.sid, AsSpectator: spectator}
}

func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Spectator bool `json:"spectator"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("room_id", string(cl.room)).Bool("spectator", p.Spectator).Msg("join")
	return ctl.Orch.Join(ctx, cl.room, ctl.joinRequest(cl, p.Spectator))
}

// handleLeave drops the session from the roster; the socket stays open and
// keeps receiving snapshots.
func (ctl *SignalWSController) handleLeave(ctx context.Context, cl *client, _ []byte) error {
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Msg("leave")
	return ctl.Orch.Leave(ctx, cl.room, ctl.userOf(cl), cl.sid)
}

func (ctl *SignalWSController) handleToggle(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Event rules.SectionEvent `json:"event"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.ToggleSection(ctx, cl.room, ctl.joinRequest(cl, false), p.Event)
}

func (ctl *SignalWSController) handleRename(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.RenameRoom(ctx, cl.room, ctl.userOf(cl), p.Name)
}

func (ctl *SignalWSController) handleOptions(ctx context.Context, cl *client, data []byte) error {
	var p rules.OptionsUpdate
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.UpdateOptions(ctx, cl.room, ctl.userOf(cl), p)
}

func (ctl *SignalWSController) handleClearUsers(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		Target domain.UserID `json:"target"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.ClearUsers(ctx, cl.room, ctl.userOf(cl), p.Target)
}

func (ctl *SignalWSController) handleChangeFacilitator(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		To domain.UserID `json:"to"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	return ctl.Orch.ChangeFacilitator(ctx, cl.room, ctl.userOf(cl), p.To)
}
