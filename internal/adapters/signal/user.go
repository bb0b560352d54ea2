package signal

import (
	"context"

	"github.com/dkeye/Poker/internal/adapters/blob"
	"github.com/dkeye/Poker/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleProfile changes how the caller appears in this room. The change is
// kept for later joins on the same connection.
func (ctl *SignalWSController) handleProfile(ctx context.Context, cl *client, data []byte) error {
	var p struct {
		DisplayName string `json:"displayName"`
		ImageURL    string `json:"imageURL"`
	}
	if err := decode(data, &p); err != nil {
		return err
	}
	prof := cl.profile
	prof.UserID = ctl.userOf(cl)
	prof.ImageURL = p.ImageURL
	if err := prof.SetDisplayName(p.DisplayName); err != nil {
		return err
	}
	if err := ctl.Orch.UpdateProfile(ctx, cl.room, prof); err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("name", prof.DisplayName).Msg("profile")
	cl.profile = prof
	return ctl.handleWhoAmI(ctx, cl, nil)
}

// handleWhoAmI answers with the caller's identity and, since other clients
// only see that an estimate exists, the caller's own estimate.
func (ctl *SignalWSController) handleWhoAmI(ctx context.Context, cl *client, _ []byte) error {
	uid := ctl.userOf(cl)
	resp := struct {
		Type          string        `json:"type"`
		UserID        domain.UserID `json:"userID"`
		SessionID     string        `json:"sessionID"`
		DisplayName   string        `json:"displayName"`
		ImageURL      string        `json:"imageURL,omitempty"`
		Anonymous     bool          `json:"anonymous"`
		Room          domain.RoomID `json:"roomID"`
		Member        bool          `json:"member"`
		EstimatePoint *string       `json:"estimatePoint"`
	}{
		Type:        "whoami",
		UserID:      uid,
		SessionID:   string(cl.sid),
		DisplayName: cl.profile.DisplayName,
		ImageURL:    blob.ResolveOrEmpty(ctx, ctl.Blobs, cl.profile.ImageURL),
		Anonymous:   cl.profile.Anonymous && uid == cl.profile.UserID,
		Room:        cl.room,
	}
	r, err := ctl.Orch.GetRoom(ctx, cl.room)
	if err != nil {
		return err
	}
	if m, ok := r.Member(uid); ok {
		resp.Member = true
		resp.DisplayName = m.DisplayName
		resp.EstimatePoint = m.EstimatePoint
	}
	ctl.sendJSON(cl.conn, resp)
	return nil
}
