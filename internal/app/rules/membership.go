package rules

import (
	"time"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

type JoinRequest struct {
	Profile     domain.Profile
	SessionID   core.SessionID
	AsSpectator bool
}

type SectionEvent string

const (
	SectionJoin  SectionEvent = "join"
	SectionLeave SectionEvent = "leave"
)

func profileOps(uid domain.UserID, p domain.Profile) core.Patch {
	var ops core.Patch
	if p.DisplayName != "" {
		ops = append(ops, core.Set(core.MemberPath(uid, "displayName"), p.DisplayName))
	}
	if p.ImageURL != "" {
		ops = append(ops, core.Set(core.MemberPath(uid, "imageURL"), p.ImageURL))
	}
	return ops
}

// BuildRoom makes the initial document. The creator is the first member and
// the facilitator.
func BuildRoom(id domain.RoomID, name string, creator domain.Profile, sid core.SessionID, token string, now time.Time) (*domain.Room, error) {
	name, err := domain.ValidateRoomName(name)
	if err != nil {
		return nil, err
	}
	if err := creator.UserID.Validate(); err != nil {
		return nil, err
	}
	joined := now
	m := &domain.Member{
		DisplayName:    creator.DisplayName,
		ImageURL:       creator.ImageURL,
		ActiveSessions: []string{},
		IsFacilitator:  true,
		JoinedAt:       &joined,
	}
	if sid != "" {
		m.ActiveSessions = append(m.ActiveSessions, string(sid))
	}
	return &domain.Room{
		RoomID:         id,
		RoomName:       name,
		Session:        token,
		EstimateStatus: domain.StatusClosed,
		User:           map[domain.UserID]*domain.Member{creator.UserID: m},
		Option:         domain.DefaultOptions(),
		History:        map[string]domain.RoundRecord{},
		VotingAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// PlanJoin creates the member on first contact, refreshes the profile
// otherwise, and attaches the session.
func PlanJoin(r *domain.Room, req JoinRequest, now time.Time) (core.Patch, error) {
	uid := req.Profile.UserID
	if err := uid.Validate(); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	prof := req.Profile
	if err := prof.SetDisplayName(prof.DisplayName); err != nil {
		return nil, err
	}
	p := profileOps(uid, prof)
	if _, ok := r.Member(uid); !ok {
		p = append(p,
			core.Set(core.MemberPath(uid, "estimatePoint"), nil),
			core.Set(core.MemberPath(uid, "joinedAt"), now),
		)
	}
	p = append(p,
		core.ArrayUnion(core.MemberPath(uid, "activeSessions"), string(req.SessionID)),
		core.Set(core.MemberPath(uid, "isSpectator"), req.AsSpectator),
	)
	return p, nil
}

// PlanToggleSection moves a member between voters and spectators. Becoming a
// spectator drops the estimate, and closes a revealed round when no other
// active voter still holds one. now and token start the next round in that
// case.
func PlanToggleSection(r *domain.Room, req JoinRequest, event SectionEvent, now time.Time, token string) (core.Patch, error) {
	uid := req.Profile.UserID
	if _, ok := r.Member(uid); !ok {
		return nil, domain.ErrNotFound
	}
	p := profileOps(uid, req.Profile)
	if req.SessionID != "" {
		p = append(p, core.ArrayUnion(core.MemberPath(uid, "activeSessions"), string(req.SessionID)))
	}
	switch event {
	case SectionJoin:
		p = append(p, core.Set(core.MemberPath(uid, "isSpectator"), false))
	case SectionLeave:
		p = append(p,
			core.Set(core.MemberPath(uid, "isSpectator"), true),
			core.Set(core.MemberPath(uid, "estimatePoint"), nil),
		)
		if r.EstimateStatus != domain.StatusClosed && !votingWithEstimate(r, uid) {
			closing, err := closeRoundOps(r, now, token)
			if err != nil {
				return nil, err
			}
			p = append(p, closing...)
		}
	default:
		return nil, domain.ErrInvalidArgument
	}
	return p, nil
}

// closeRoundOps forces the round back to CLOSED. A revealed round already
// filed its record under the current token, so the token rotates and the
// timer restarts.
func closeRoundOps(r *domain.Room, now time.Time, token string) (core.Patch, error) {
	p := core.Patch{core.Set("estimateStatus", domain.StatusClosed)}
	if !r.EstimateStatus.Revealed() {
		return p, nil
	}
	if token == "" || token == r.Session {
		return nil, domain.ErrInvalidArgument
	}
	return append(p,
		core.Set("votingAt", now),
		core.Set("session", token),
	), nil
}

func resetMemberOps(uid domain.UserID) core.Patch {
	return core.Patch{
		core.Set(core.MemberPath(uid, "estimatePoint"), nil),
		core.Set(core.MemberPath(uid, "activeSessions"), []string{}),
		core.Set(core.MemberPath(uid, "isSpectator"), true),
	}
}

// PlanClearUsers resets one member, or everyone when target is empty.
// Clearing yourself is always allowed.
func PlanClearUsers(r *domain.Room, caller, target domain.UserID, now time.Time, token string) (core.Patch, error) {
	privileged := r.IsFacilitator(caller) || r.Option.AllowOthersToClearUsers
	if target == "" {
		if !privileged {
			return nil, domain.ErrPermissionDenied
		}
		var p core.Patch
		for _, id := range r.MemberIDs() {
			p = append(p, resetMemberOps(id)...)
		}
		closing, err := closeRoundOps(r, now, token)
		if err != nil {
			return nil, err
		}
		return append(p, closing...), nil
	}
	if target != caller && !privileged {
		return nil, domain.ErrPermissionDenied
	}
	if _, ok := r.Member(target); !ok {
		return nil, domain.ErrNotFound
	}
	p := resetMemberOps(target)
	if r.EstimateStatus != domain.StatusClosed && !votingWithEstimate(r, target) {
		closing, err := closeRoundOps(r, now, token)
		if err != nil {
			return nil, err
		}
		p = append(p, closing...)
	}
	return p, nil
}

// PlanChangeFacilitator hands the role to another roster member. Every other
// holder is unset in the same write, which also repairs a doubled role left
// by an earlier race.
func PlanChangeFacilitator(r *domain.Room, caller, to domain.UserID) (core.Patch, error) {
	if !r.IsFacilitator(caller) {
		return nil, domain.ErrPermissionDenied
	}
	if _, ok := r.Member(to); !ok {
		return nil, domain.ErrNotFound
	}
	var p core.Patch
	for _, id := range r.Facilitators() {
		if id != to {
			p = append(p, core.Set(core.MemberPath(id, "isFacilitator"), false))
		}
	}
	if !r.IsFacilitator(to) {
		p = append(p, core.Set(core.MemberPath(to, "isFacilitator"), true))
	}
	return p, nil
}

// PlanReplaceIdentity folds the member from into to within one room. sids
// are the live connections that stay present under to. It is keyed by
// (from, to): once from is gone the plan is empty, so reruns are harmless.
func PlanReplaceIdentity(r *domain.Room, from domain.UserID, to domain.Profile, sids ...core.SessionID) (core.Patch, error) {
	if err := to.UserID.Validate(); err != nil {
		return nil, err
	}
	old, ok := r.Member(from)
	if !ok || from == to.UserID {
		return nil, nil
	}
	cur, hasCur := r.Member(to.UserID)
	uid := to.UserID
	if to.DisplayName == "" {
		to.DisplayName = old.DisplayName
	}

	p := profileOps(uid, to)
	if to.ImageURL == "" && old.ImageURL != "" && (!hasCur || cur.ImageURL == "") {
		p = append(p, core.Set(core.MemberPath(uid, "imageURL"), old.ImageURL))
	}
	if !cur.HasEstimate() {
		p = append(p, core.Set(core.MemberPath(uid, "estimatePoint"), old.EstimatePoint))
	}
	live := make([]any, 0, len(sids))
	seen := make(map[core.SessionID]bool, len(sids))
	for _, sid := range sids {
		if sid != "" && !seen[sid] {
			seen[sid] = true
			live = append(live, string(sid))
		}
	}
	if len(live) > 0 {
		p = append(p, core.ArrayUnion(core.MemberPath(uid, "activeSessions"), live...))
	} else if !hasCur {
		p = append(p, core.Set(core.MemberPath(uid, "activeSessions"), []string{}))
	}
	if joined := earliest(old.JoinedAt, joinedAt(cur)); joined != nil {
		p = append(p, core.Set(core.MemberPath(uid, "joinedAt"), *joined))
	}
	p = append(p,
		core.Set(core.MemberPath(uid, "isFacilitator"), old.IsFacilitator || (hasCur && cur.IsFacilitator)),
		core.Set(core.MemberPath(uid, "isSpectator"), !(IsVoter(old) || IsVoter(cur))),
		core.Delete(core.MemberPath(from, "")),
	)
	return p, nil
}

func joinedAt(m *domain.Member) *time.Time {
	if m == nil {
		return nil
	}
	return m.JoinedAt
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func CanDeleteRoom(r *domain.Room, caller domain.UserID) error {
	if !r.IsFacilitator(caller) {
		return domain.ErrPermissionDenied
	}
	return nil
}

func PlanRenameRoom(r *domain.Room, caller domain.UserID, name string) (core.Patch, error) {
	if !r.IsFacilitator(caller) {
		return nil, domain.ErrPermissionDenied
	}
	name, err := domain.ValidateRoomName(name)
	if err != nil {
		return nil, err
	}
	if name == r.RoomName {
		return nil, nil
	}
	return core.Patch{core.Set("roomName", name)}, nil
}

// OptionsUpdate carries only the fields to change.
type OptionsUpdate struct {
	AllowOthersToShowEstimates   *bool   `json:"allowOthersToShowEstimates,omitempty"`
	AllowOthersToDeleteEstimates *bool   `json:"allowOthersToDeleteEstimates,omitempty"`
	AllowOthersToClearUsers      *bool   `json:"allowOthersToClearUsers,omitempty"`
	AutoRevealCards              *bool   `json:"autoRevealCards,omitempty"`
	ShowAverage                  *bool   `json:"showAverage,omitempty"`
	ActiveDeckID                 *string `json:"activeDeckID,omitempty"`
}

func PlanUpdateOptions(r *domain.Room, caller domain.UserID, u OptionsUpdate) (core.Patch, error) {
	if !r.IsFacilitator(caller) {
		return nil, domain.ErrPermissionDenied
	}
	var p core.Patch
	flag := func(field string, v *bool) {
		if v != nil {
			p = append(p, core.Set("option."+field, *v))
		}
	}
	flag("allowOthersToShowEstimates", u.AllowOthersToShowEstimates)
	flag("allowOthersToDeleteEstimates", u.AllowOthersToDeleteEstimates)
	flag("allowOthersToClearUsers", u.AllowOthersToClearUsers)
	flag("autoRevealCards", u.AutoRevealCards)
	flag("showAverage", u.ShowAverage)
	if u.ActiveDeckID != nil {
		found := false
		for _, d := range r.Option.EstimateOption.Decks {
			if d.DeckID == *u.ActiveDeckID {
				found = true
				break
			}
		}
		if !found {
			return nil, domain.ErrInvalidArgument
		}
		p = append(p, core.Set("option.estimateOption.activeDeckID", *u.ActiveDeckID))
	}
	return p, nil
}

// PlanUpdateProfile lets a member change how they appear in one room.
func PlanUpdateProfile(r *domain.Room, p domain.Profile) (core.Patch, error) {
	if _, ok := r.Member(p.UserID); !ok {
		return nil, domain.ErrNotFound
	}
	if err := p.SetDisplayName(p.DisplayName); err != nil {
		return nil, err
	}
	ops := core.Patch{core.Set(core.MemberPath(p.UserID, "displayName"), p.DisplayName)}
	if p.ImageURL == "" {
		ops = append(ops, core.Delete(core.MemberPath(p.UserID, "imageURL")))
	} else {
		ops = append(ops, core.Set(core.MemberPath(p.UserID, "imageURL"), p.ImageURL))
	}
	return ops, nil
}
