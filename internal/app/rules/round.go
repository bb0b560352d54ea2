package rules

import (
	"strings"
	"time"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

// CanFlip is the shared eligibility for reveal and next issue.
func CanFlip(r *domain.Room, caller domain.UserID) bool {
	if r.IsFacilitator(caller) {
		return true
	}
	m, _ := r.Member(caller)
	return r.Option.AllowOthersToShowEstimates && IsVoter(m)
}

func anyEstimate(r *domain.Room) bool {
	for _, m := range r.User {
		if m.HasEstimate() {
			return true
		}
	}
	return false
}

// PlanReveal moves CLOSED to OPENED and freezes the round into history under
// the current round token. token is only used when the room has none yet.
// Revealing an already revealed room yields an empty patch.
func PlanReveal(r *domain.Room, caller domain.UserID, now time.Time, token string) (core.Patch, error) {
	if !CanFlip(r, caller) {
		return nil, domain.ErrPermissionDenied
	}
	return planReveal(r, now, token)
}

func planReveal(r *domain.Room, now time.Time, token string) (core.Patch, error) {
	if r.EstimateStatus.Revealed() {
		return nil, nil
	}
	if !HasVoters(r) && !anyEstimate(r) {
		return nil, domain.ErrNoVoters
	}
	var p core.Patch
	key := r.Session
	if key == "" {
		key = token
		p = append(p, core.Set("session", key))
	}
	p = append(p,
		core.Set(core.HistoryPath(key), BuildRoundRecord(r, now)),
		core.Set("estimateStatus", domain.StatusOpened),
	)
	return p, nil
}

// PlanNextIssue moves OPENED to CLOSED: a new round token, a restarted timer
// and every member's estimate cleared, spectators and offline members
// included.
func PlanNextIssue(r *domain.Room, caller domain.UserID, now time.Time, token string) (core.Patch, error) {
	if !CanFlip(r, caller) {
		return nil, domain.ErrPermissionDenied
	}
	if !r.EstimateStatus.Revealed() {
		return nil, nil
	}
	if token == "" || token == r.Session {
		return nil, domain.ErrInvalidArgument
	}
	p := core.Patch{
		core.Delete("issueName"),
		core.Set("votingAt", now),
		core.Set("session", token),
	}
	for _, id := range r.MemberIDs() {
		p = append(p, core.Set(core.MemberPath(id, "estimatePoint"), nil))
	}
	p = append(p, core.Set("estimateStatus", domain.StatusClosed))
	return p, nil
}

// PlanFlip requests a target status; equal to the current status is a no-op.
func PlanFlip(r *domain.Room, caller domain.UserID, status domain.EstimateStatus, now time.Time, token string) (core.Patch, error) {
	switch status {
	case domain.StatusOpened:
		return PlanReveal(r, caller, now, token)
	case domain.StatusClosed:
		return PlanNextIssue(r, caller, now, token)
	default:
		return nil, domain.ErrInvalidArgument
	}
}

// ShouldAutoReveal is true when autoRevealCards is on, the round is
// collecting, and every active voter has cast.
func ShouldAutoReveal(r *domain.Room) bool {
	if r == nil || !r.Option.AutoRevealCards || r.EstimateStatus.Revealed() {
		return false
	}
	voters := ActiveVoters(r)
	if len(voters) == 0 {
		return false
	}
	for _, id := range voters {
		if !r.User[id].HasEstimate() {
			return false
		}
	}
	return true
}

// PlanAutoReveal is a reveal issued by the room itself, so it skips the
// caller eligibility check.
func PlanAutoReveal(r *domain.Room, now time.Time, token string) (core.Patch, error) {
	if !ShouldAutoReveal(r) {
		return nil, nil
	}
	return planReveal(r, now, token)
}

const MaxIssueNameLen = 256

// PlanSetIssueName labels the current round. Empty clears the label.
func PlanSetIssueName(r *domain.Room, caller domain.UserID, name string) (core.Patch, error) {
	if !CanFlip(r, caller) {
		return nil, domain.ErrPermissionDenied
	}
	if r.EstimateStatus.Revealed() {
		return nil, domain.ErrVotingClosed
	}
	name = strings.TrimSpace(name)
	if len([]rune(name)) > MaxIssueNameLen {
		return nil, domain.ErrInvalidArgument
	}
	if name == "" {
		return core.Patch{core.Delete("issueName")}, nil
	}
	return core.Patch{core.Set("issueName", name)}, nil
}
