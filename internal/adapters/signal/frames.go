package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Poker/internal/adapters/blob"
	"github.com/dkeye/Poker/internal/app"
	"github.com/dkeye/Poker/internal/app/rules"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

var (
	errBadPayload  = errors.New("bad_payload")
	errRateLimited = errors.New("rate_limited")
)

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ErrorCode is the stable string clients switch on.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, errBadPayload):
		return "bad_payload"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, errUnknownType):
		return "unknown_type"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrTransient):
		return "unavailable"
	case errors.Is(err, domain.ErrVotingClosed):
		return "voting_closed"
	case errors.Is(err, domain.ErrNoVoters):
		return "no_voters"
	case errors.Is(err, domain.ErrInvalidEstimate):
		return "invalid_estimate"
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrDisplayNameEmpty),
		errors.Is(err, domain.ErrDisplayNameTooLong),
		errors.Is(err, domain.ErrRoomNameEmpty),
		errors.Is(err, domain.ErrRoomNameTooLong),
		errors.Is(err, domain.ErrUserIDEmpty),
		errors.Is(err, domain.ErrUserIDTooLong),
		errors.Is(err, domain.ErrUserIDMalformed):
		return "invalid_argument"
	default:
		return "internal"
	}
}

// MemberView is a member as clients see it. Session IDs are reduced to
// a count, and estimates stay hidden until the round is revealed.
type MemberView struct {
	DisplayName   string     `json:"displayName"`
	ImageURL      string     `json:"imageURL,omitempty"`
	EstimatePoint *string    `json:"estimatePoint"`
	HasEstimate   bool       `json:"hasEstimate"`
	Sessions      int        `json:"sessions"`
	IsSpectator   bool       `json:"isSpectator"`
	IsFacilitator bool       `json:"isFacilitator"`
	JoinedAt      *time.Time `json:"joinedAt,omitempty"`
}

type RoomView struct {
	RoomID         domain.RoomID                 `json:"roomID"`
	RoomName       string                        `json:"roomName"`
	Session        string                        `json:"session"`
	IssueName      string                        `json:"issueName,omitempty"`
	EstimateStatus domain.EstimateStatus         `json:"estimateStatus"`
	User           map[domain.UserID]MemberView  `json:"user"`
	Option         domain.RoomOptions            `json:"option"`
	History        map[string]domain.RoundRecord `json:"history,omitempty"`
	VotingAt       time.Time                     `json:"votingAt"`
	CreatedAt      time.Time                     `json:"createdAt"`
	UpdatedAt      time.Time                     `json:"updatedAt"`
}

type StateFrame struct {
	Type string     `json:"type"`
	Room RoomView   `json:"room"`
	View rules.View `json:"view"`
}

type deletedFrame struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomID"`
}

const resolveTimeout = 2 * time.Second

// NewEncoder renders snapshots for the room feed. Avatar references are
// resolved through blobs, which may be nil.
func NewEncoder(blobs core.BlobStore) app.EncodeFunc {
	return func(snap core.Snapshot) (core.Frame, error) {
		if !snap.Exists() {
			return json.Marshal(deletedFrame{Type: "room_deleted", RoomID: snap.RoomID})
		}
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		return json.Marshal(NewState(ctx, snap.Room, blobs))
	}
}

// NewState is the room_state frame for r; REST reads return the same shape.
func NewState(ctx context.Context, r *domain.Room, blobs core.BlobStore) StateFrame {
	return StateFrame{
		Type: "room_state",
		Room: newRoomView(ctx, r, blobs),
		View: rules.Derive(r),
	}
}

func newRoomView(ctx context.Context, r *domain.Room, blobs core.BlobStore) RoomView {
	revealed := r.EstimateStatus.Revealed()
	users := make(map[domain.UserID]MemberView, len(r.User))
	for id, m := range r.User {
		if m == nil {
			continue
		}
		mv := MemberView{
			DisplayName:   m.DisplayName,
			ImageURL:      blob.ResolveOrEmpty(ctx, blobs, m.ImageURL),
			HasEstimate:   m.HasEstimate(),
			Sessions:      len(m.ActiveSessions),
			IsSpectator:   m.IsSpectator,
			IsFacilitator: m.IsFacilitator,
			JoinedAt:      m.JoinedAt,
		}
		if revealed {
			mv.EstimatePoint = m.EstimatePoint
		}
		users[id] = mv
	}
	return RoomView{
		RoomID:         r.RoomID,
		RoomName:       r.RoomName,
		Session:        r.Session,
		IssueName:      r.IssueName,
		EstimateStatus: r.EstimateStatus,
		User:           users,
		Option:         r.Option,
		History:        r.History,
		VotingAt:       r.VotingAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
