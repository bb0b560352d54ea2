// Package rules holds the room protocol as pure planners: each takes the
// latest room snapshot and an action and returns the field patch to commit.
// Nothing here talks to a store or logs.
package rules

import (
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

func IsPresent(m *domain.Member) bool {
	return m != nil && len(m.ActiveSessions) > 0
}

// IsVoter reports whether m counts towards round completion.
func IsVoter(m *domain.Member) bool {
	return IsPresent(m) && !m.IsSpectator
}

func PresentMembers(r *domain.Room) []domain.UserID {
	var out []domain.UserID
	for _, id := range r.MemberIDs() {
		if IsPresent(r.User[id]) {
			out = append(out, id)
		}
	}
	return out
}

func ActiveVoters(r *domain.Room) []domain.UserID {
	var out []domain.UserID
	for _, id := range r.MemberIDs() {
		if IsVoter(r.User[id]) {
			out = append(out, id)
		}
	}
	return out
}

func HasVoters(r *domain.Room) bool {
	for _, m := range r.User {
		if IsVoter(m) {
			return true
		}
	}
	return false
}

// votingWithEstimate reports whether any active voter other than skip holds
// a cast estimate.
func votingWithEstimate(r *domain.Room, skip domain.UserID) bool {
	for id, m := range r.User {
		if id != skip && IsVoter(m) && m.HasEstimate() {
			return true
		}
	}
	return false
}

// PlanAttach adds a connection to the member's session set.
func PlanAttach(r *domain.Room, uid domain.UserID, sid core.SessionID) (core.Patch, error) {
	if _, ok := r.Member(uid); !ok {
		return nil, domain.ErrNotFound
	}
	if sid == "" {
		return nil, domain.ErrInvalidArgument
	}
	return core.Patch{core.ArrayUnion(core.MemberPath(uid, "activeSessions"), string(sid))}, nil
}

// PlanDetach removes a connection from the member's session set. It never
// touches the estimate, so a dropped tab keeps its vote.
func PlanDetach(r *domain.Room, uid domain.UserID, sid core.SessionID) core.Patch {
	if _, ok := r.Member(uid); !ok || sid == "" {
		return nil
	}
	return core.Patch{core.ArrayRemove(core.MemberPath(uid, "activeSessions"), string(sid))}
}
