package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func apply(t *testing.T, r *domain.Room, p core.Patch) *domain.Room {
	t.Helper()
	doc, err := core.EncodeRoom(r)
	require.NoError(t, err)
	require.NoError(t, core.Apply(doc, p))
	out, err := core.DecodeRoom(doc)
	require.NoError(t, err)
	return out
}

func profile(id domain.UserID, name string) domain.Profile {
	return domain.Profile{UserID: id, DisplayName: name}
}

// room builds a collecting room where "fac" is the facilitator and every
// listed voter is online.
func room(t *testing.T, voters ...domain.UserID) *domain.Room {
	t.Helper()
	r, err := BuildRoom("r1", "Sprint 42", profile("fac", "Fay"), "s-fac", "tok0", t0)
	require.NoError(t, err)
	for _, id := range voters {
		p, err := PlanJoin(r, JoinRequest{Profile: profile(id, string(id)), SessionID: core.SessionID("s-" + id)}, t0)
		require.NoError(t, err)
		r = apply(t, r, p)
	}
	return r
}

func cast(t *testing.T, r *domain.Room, id domain.UserID, v string) *domain.Room {
	t.Helper()
	p, err := PlanCast(r, id, ptr(v))
	require.NoError(t, err)
	return apply(t, r, p)
}

func TestBuildRoom(t *testing.T) {
	r := room(t)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.Equal(t, []domain.UserID{"fac"}, r.Facilitators())
	assert.Equal(t, "tok0", r.Session)
	assert.Equal(t, domain.DeckFibonacci, r.Option.EstimateOption.ActiveDeckID)
	assert.True(t, IsVoter(r.User["fac"]))

	_, err := BuildRoom("r1", "   ", profile("fac", "Fay"), "", "tok", t0)
	assert.ErrorIs(t, err, domain.ErrRoomNameEmpty)
}

func TestJoinIsIdempotent(t *testing.T) {
	r := room(t, "a")
	req := JoinRequest{Profile: profile("a", "a"), SessionID: "s-a"}
	for range 2 {
		p, err := PlanJoin(r, req, t0)
		require.NoError(t, err)
		r = apply(t, r, p)
	}
	assert.Equal(t, []string{"s-a"}, r.User["a"].ActiveSessions)
}

func TestJoinSecondTabAndSpectator(t *testing.T) {
	r := room(t, "a")
	p, err := PlanJoin(r, JoinRequest{Profile: profile("a", "Ann"), SessionID: "s-a2", AsSpectator: true}, t0.Add(time.Minute))
	require.NoError(t, err)
	r = apply(t, r, p)

	m := r.User["a"]
	assert.ElementsMatch(t, []string{"s-a", "s-a2"}, m.ActiveSessions)
	assert.True(t, m.IsSpectator)
	assert.Equal(t, "Ann", m.DisplayName)
	require.NotNil(t, m.JoinedAt)
	assert.True(t, m.JoinedAt.Equal(t0), "joinedAt is only set on first contact")
}

func TestJoinRejectsBadInput(t *testing.T) {
	r := room(t)
	_, err := PlanJoin(r, JoinRequest{Profile: profile("a.b", "x"), SessionID: "s"}, t0)
	assert.ErrorIs(t, err, domain.ErrUserIDMalformed)
	_, err = PlanJoin(r, JoinRequest{Profile: profile("a", "x")}, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = PlanJoin(r, JoinRequest{Profile: profile("a", " "), SessionID: "s"}, t0)
	assert.ErrorIs(t, err, domain.ErrDisplayNameEmpty)
}

func TestLeaveRejoinSymmetry(t *testing.T) {
	r := room(t, "a")
	before := append([]string(nil), r.User["a"].ActiveSessions...)

	p, err := PlanAttach(r, "a", "s-new")
	require.NoError(t, err)
	r = apply(t, r, p)
	r = apply(t, r, PlanDetach(r, "a", "s-new"))

	assert.Equal(t, before, r.User["a"].ActiveSessions)
}

func TestLeaveKeepsEstimate(t *testing.T) {
	r := cast(t, room(t, "a"), "a", "5")
	r = apply(t, r, PlanDetach(r, "a", "s-a"))

	assert.False(t, IsPresent(r.User["a"]))
	require.NotNil(t, r.User["a"].EstimatePoint)
	assert.Equal(t, "5", *r.User["a"].EstimatePoint)
	assert.Empty(t, PlanDetach(r, "ghost", "s-x"))
}

func TestAttachUnknownMember(t *testing.T) {
	_, err := PlanAttach(room(t), "ghost", "s")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNextIssueClearsEveryVote(t *testing.T) {
	r := room(t, "a", "b", "c")
	r = cast(t, r, "a", "3")
	r = cast(t, r, "b", "8")
	r = cast(t, r, "fac", "?")
	// offline spectator with a leftover vote
	r.User["c"].IsSpectator = true
	r.User["c"].ActiveSessions = nil
	r.User["c"].EstimatePoint = ptr("13")

	p, err := PlanReveal(r, "fac", t0.Add(time.Minute), "unused")
	require.NoError(t, err)
	r = apply(t, r, p)
	prev := r.Session

	p, err = PlanNextIssue(r, "fac", t0.Add(2*time.Minute), NewRoundToken())
	require.NoError(t, err)
	r = apply(t, r, p)

	for id, m := range r.User {
		assert.Nil(t, m.EstimatePoint, "member %s", id)
	}
	assert.NotEqual(t, prev, r.Session)
	assert.Len(t, r.Session, TokenLen)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.True(t, r.VotingAt.Equal(t0.Add(2*time.Minute)))
}

func TestNextIssueClearsIssueName(t *testing.T) {
	r := room(t, "a")
	p, err := PlanSetIssueName(r, "fac", "  PROJ-12 login  ")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, "PROJ-12 login", r.IssueName)

	r = cast(t, r, "a", "2")
	p, err = PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, "PROJ-12 login", r.History["tok0"].IssueName)

	_, err = PlanSetIssueName(r, "fac", "late")
	assert.ErrorIs(t, err, domain.ErrVotingClosed)

	p, err = PlanNextIssue(r, "fac", t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Empty(t, r.IssueName)
}

func TestAggregation(t *testing.T) {
	r := room(t, "a", "b", "c")
	r.Option.EstimateOption.ActiveDeckID = ""
	for id, v := range map[domain.UserID]string{"a": "5", "b": "5", "c": "8", "fac": "?"} {
		r = cast(t, r, id, v)
	}
	s := Summarize(r)
	assert.Equal(t, map[string]int{"5": 2, "8": 1, "?": 1}, s.Histogram)
	assert.InDelta(t, 6.0, s.Average, 1e-9)
	assert.True(t, s.HasNumeric)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 4, s.Voted)
	assert.Equal(t, "6", s.Result())
}

func TestMajorityTieBreakIsLexicographic(t *testing.T) {
	s := Summary{Histogram: map[string]int{"XL": 2, "M": 2, "S": 1}}
	for range 20 {
		assert.Equal(t, "M", s.Majority())
	}
	assert.Equal(t, "M", s.Result())
	assert.Equal(t, "", Summary{Histogram: map[string]int{}}.Majority())
}

func TestFormatAverage(t *testing.T) {
	assert.Equal(t, "4", FormatAverage(4))
	assert.Equal(t, "4.33", FormatAverage(13.0/3))
	assert.Equal(t, "0.5", FormatAverage(0.5))
	assert.Equal(t, "1,234.57", FormatAverage(1234.5678))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:01:05", FormatDuration(65*time.Second))
	assert.Equal(t, "01:00:00", FormatDuration(time.Hour))
	assert.Equal(t, "00:00:00", FormatDuration(-time.Second))
	assert.Equal(t, "27:46:40", FormatDuration(100000*time.Second))
}

func TestRevealByNonPermittedSpectatorIsRejected(t *testing.T) {
	r := room(t, "a", "watcher")
	r = cast(t, r, "a", "3")
	r.User["watcher"].IsSpectator = true

	_, err := PlanReveal(r, "watcher", t0, "x")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.Empty(t, r.History)

	// the flag does not help a spectator either
	r.Option.AllowOthersToShowEstimates = true
	_, err = PlanReveal(r, "watcher", t0, "x")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	p, err := PlanReveal(r, "a", t0, "x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpened, apply(t, r, p).EstimateStatus)
}

func TestRevealNeedsVotersOrVotes(t *testing.T) {
	r := room(t)
	r.User["fac"].IsSpectator = true
	_, err := PlanReveal(r, "fac", t0, "x")
	assert.ErrorIs(t, err, domain.ErrNoVoters)

	// a disconnected voter left a vote behind
	r.User["gone"] = &domain.Member{DisplayName: "Gone", EstimatePoint: ptr("8")}
	p, err := PlanReveal(r, "fac", t0, "x")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, "8", r.History["tok0"].Result)
}

func TestRevealIsIdempotent(t *testing.T) {
	r := cast(t, room(t, "a"), "a", "3")
	p, err := PlanFlip(r, "fac", domain.StatusOpened, t0, "x")
	require.NoError(t, err)
	r = apply(t, r, p)

	p, err = PlanFlip(r, "fac", domain.StatusOpened, t0.Add(time.Hour), "y")
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = PlanFlip(room(t), "fac", domain.StatusClosed, t0, "y")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = PlanFlip(r, "fac", domain.StatusOpening, t0, "y")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRevealGeneratesTokenWhenMissing(t *testing.T) {
	r := cast(t, room(t, "a"), "a", "3")
	r.Session = ""
	p, err := PlanReveal(r, "fac", t0, "fresh")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, "fresh", r.Session)
	assert.Contains(t, r.History, "fresh")
}

func TestRoundRecord(t *testing.T) {
	r := room(t, "A", "B")
	r = cast(t, r, "A", "3")
	r = cast(t, r, "B", "5")
	now := r.VotingAt.Add(65 * time.Second)

	p, err := PlanReveal(r, "fac", now, "")
	require.NoError(t, err)
	r = apply(t, r, p)

	rec, ok := r.History["tok0"]
	require.True(t, ok)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, 2, rec.Voted)
	assert.Equal(t, "00:01:05", rec.Duration)
	assert.Equal(t, "4", rec.Result)
	assert.True(t, rec.Date.Equal(now))
	assert.Equal(t, []domain.PlayerResult{
		{DisplayName: "A", EstimatePoint: "3"},
		{DisplayName: "B", EstimatePoint: "5"},
	}, rec.PlayerResult)
}

func TestConcurrentRevealsShareHistoryKey(t *testing.T) {
	r := cast(t, room(t, "a"), "a", "3")
	p1, err := PlanReveal(r, "fac", t0.Add(time.Second), "")
	require.NoError(t, err)
	p2, err := PlanReveal(r, "fac", t0.Add(2*time.Second), "")
	require.NoError(t, err)

	r = apply(t, apply(t, r, p1), p2)
	assert.Len(t, r.History, 1)
	assert.Equal(t, "00:00:02", r.History["tok0"].Duration)
}

func TestCast(t *testing.T) {
	r := room(t, "a", "watcher")
	r.User["watcher"].IsSpectator = true

	_, err := PlanCast(r, "a", ptr("7"))
	assert.ErrorIs(t, err, domain.ErrInvalidEstimate)
	_, err = PlanCast(r, "watcher", ptr("5"))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = PlanCast(r, "ghost", ptr("5"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	r = cast(t, r, "a", "☕")
	p, err := PlanCast(r, "a", nil)
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Nil(t, r.User["a"].EstimatePoint)

	r.EstimateStatus = domain.StatusOpened
	_, err = PlanCast(r, "a", ptr("5"))
	assert.ErrorIs(t, err, domain.ErrVotingClosed)
}

func TestCastWhileOpeningIsAllowed(t *testing.T) {
	r := room(t, "a")
	r.EstimateStatus = domain.StatusOpening
	_, err := PlanCast(r, "a", ptr("5"))
	assert.NoError(t, err)
}

func TestClearEstimate(t *testing.T) {
	r := room(t, "a", "b")
	r = cast(t, r, "a", "5")
	r = cast(t, r, "b", "8")

	_, err := PlanClearEstimate(r, "b", "a")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	p, err := PlanClearEstimate(r, "b", "")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Nil(t, r.User["b"].EstimatePoint)

	p, err = PlanClearEstimate(r, "fac", "a")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Nil(t, r.User["a"].EstimatePoint)

	r = cast(t, r, "a", "5")
	r.Option.AllowOthersToDeleteEstimates = true
	p, err = PlanClearEstimate(r, "b", "a")
	require.NoError(t, err)
	assert.NotEmpty(t, p)

	p, err = PlanClearEstimate(r, "b", "b")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestToggleToSpectatorClosesRoundWhenLastVoterLeaves(t *testing.T) {
	r := room(t, "a")
	r.User["fac"].IsSpectator = true
	r = cast(t, r, "a", "5")
	p, err := PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)
	require.Equal(t, domain.StatusOpened, r.EstimateStatus)

	p, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a"), SessionID: "s-a"}, SectionLeave, t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)

	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.Nil(t, r.User["a"].EstimatePoint)
	assert.True(t, r.User["a"].IsSpectator)
}

func TestToggleKeepsRoundWhileOthersStillVote(t *testing.T) {
	r := room(t, "a", "b")
	r = cast(t, r, "a", "5")
	r = cast(t, r, "b", "3")
	p, err := PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)

	p, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a")}, SectionLeave, t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusOpened, r.EstimateStatus)

	p, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a")}, SectionJoin, t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.False(t, r.User["a"].IsSpectator)

	_, err = PlanToggleSection(r, JoinRequest{Profile: profile("ghost", "g")}, SectionJoin, t0, "tok1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a")}, "sideways", t0, "tok1")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestClearUsersAll(t *testing.T) {
	r := room(t, "a", "b")
	r = cast(t, r, "a", "5")
	p, err := PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)

	_, err = PlanClearUsers(r, "a", "", t0, "tok1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	p, err = PlanClearUsers(r, "fac", "", t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)

	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	for _, m := range r.User {
		assert.Nil(t, m.EstimatePoint)
		assert.Empty(t, m.ActiveSessions)
		assert.True(t, m.IsSpectator)
	}
	assert.Len(t, r.History, 1, "history survives a reset")
	assert.Equal(t, []domain.UserID{"fac"}, r.Facilitators())
}

func TestClearUsersSingle(t *testing.T) {
	r := room(t, "a", "b")
	r = cast(t, r, "a", "5")
	r = cast(t, r, "b", "3")
	p, err := PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)

	_, err = PlanClearUsers(r, "a", "b", t0, "tok1")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = PlanClearUsers(r, "fac", "ghost", t0, "tok1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p, err = PlanClearUsers(r, "a", "a", t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusOpened, r.EstimateStatus, "b still holds a vote")

	r.Option.AllowOthersToClearUsers = true
	p, err = PlanClearUsers(r, "a", "b", t0, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.True(t, r.User["b"].IsSpectator)
}

func TestForcedCloseStartsNewRound(t *testing.T) {
	reveal := func(r *domain.Room) *domain.Room {
		p, err := PlanReveal(r, "fac", t0, "")
		require.NoError(t, err)
		return apply(t, r, p)
	}
	rejoin := func(r *domain.Room, ids ...domain.UserID) *domain.Room {
		for _, id := range ids {
			p, err := PlanJoin(r, JoinRequest{Profile: profile(id, string(id)), SessionID: core.SessionID("s-" + id)}, t0)
			require.NoError(t, err)
			r = apply(t, r, p)
		}
		return r
	}

	r := room(t, "a", "b")
	r.User["fac"].IsSpectator = true
	r = cast(t, r, "a", "3")
	r = cast(t, r, "b", "5")
	r = reveal(r)
	require.Equal(t, "4", r.History["tok0"].Result)

	later := t0.Add(10 * time.Minute)
	p, err := PlanClearUsers(r, "fac", "", later, "tok1")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.Equal(t, "tok1", r.Session)
	assert.True(t, r.VotingAt.Equal(later))

	r = rejoin(r, "a", "b")
	r = cast(t, r, "a", "13")
	r = cast(t, r, "b", "13")
	r = reveal(r)
	require.Len(t, r.History, 2)
	assert.Equal(t, "4", r.History["tok0"].Result)
	assert.Equal(t, "13", r.History["tok1"].Result)

	// the last voter stepping out closes the round the same way
	p, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a")}, SectionLeave, later, "tok2")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusOpened, r.EstimateStatus, "b still holds a vote")
	p, err = PlanToggleSection(r, JoinRequest{Profile: profile("b", "b")}, SectionLeave, later, "tok2")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusClosed, r.EstimateStatus)
	assert.Equal(t, "tok2", r.Session)
	assert.Len(t, r.History, 2)

	r = rejoin(r, "a")
	r = reveal(cast(t, r, "a", "8"))
	_, err = PlanToggleSection(r, JoinRequest{Profile: profile("a", "a")}, SectionLeave, later, "tok2")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "the token must change")
}

func TestChangeFacilitator(t *testing.T) {
	r := room(t, "a", "b")

	_, err := PlanChangeFacilitator(r, "a", "b")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = PlanChangeFacilitator(r, "fac", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	p, err := PlanChangeFacilitator(r, "fac", "b")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, []domain.UserID{"b"}, r.Facilitators())
	assert.False(t, r.User["fac"].IsFacilitator)

	// a doubled role is repaired by the next handoff
	r.User["a"].IsFacilitator = true
	p, err = PlanChangeFacilitator(r, "b", "fac")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, []domain.UserID{"fac"}, r.Facilitators())

	p, err = PlanChangeFacilitator(r, "fac", "fac")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestReplaceIdentityIntoNewEntry(t *testing.T) {
	r := room(t)
	r = cast(t, r, "fac", "5")
	joined := *r.User["fac"].JoinedAt

	to := domain.Profile{UserID: "durable", DisplayName: "Fay Real", ImageURL: "avatars/fay.png"}
	p, err := PlanReplaceIdentity(r, "fac", to, "s-new")
	require.NoError(t, err)
	r = apply(t, r, p)

	_, stillThere := r.Member("fac")
	assert.False(t, stillThere)
	m, ok := r.Member("durable")
	require.True(t, ok)
	assert.Equal(t, "Fay Real", m.DisplayName)
	assert.Equal(t, "avatars/fay.png", m.ImageURL)
	assert.True(t, m.IsFacilitator)
	assert.False(t, m.IsSpectator)
	assert.Equal(t, []string{"s-new"}, m.ActiveSessions)
	require.NotNil(t, m.EstimatePoint)
	assert.Equal(t, "5", *m.EstimatePoint)
	require.NotNil(t, m.JoinedAt)
	assert.True(t, m.JoinedAt.Equal(joined))

	// rerun after success is a no-op
	p, err = PlanReplaceIdentity(r, "fac", to, "s-new")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestReplaceIdentityMergesIntoExistingEntry(t *testing.T) {
	r := room(t, "anon", "durable")
	r.User["anon"].IsSpectator = true
	r.User["durable"].ActiveSessions = nil
	r.User["durable"].EstimatePoint = ptr("8")
	early := t0.Add(-time.Hour)
	r.User["anon"].JoinedAt = &early
	r.User["anon"].EstimatePoint = ptr("3")

	p, err := PlanReplaceIdentity(r, "anon", profile("durable", "Dee"), "s-x")
	require.NoError(t, err)
	r = apply(t, r, p)

	m := r.User["durable"]
	assert.Equal(t, "8", *m.EstimatePoint, "the durable entry's own vote wins")
	assert.True(t, m.IsSpectator, "neither identity was actively voting")
	assert.False(t, m.IsFacilitator)
	assert.True(t, m.JoinedAt.Equal(early))
	assert.Equal(t, []string{"s-x"}, m.ActiveSessions)
	assert.NotContains(t, r.User, domain.UserID("anon"))
}

func TestReplaceIdentityKeepsEveryLiveSession(t *testing.T) {
	r := room(t, "anon")

	p, err := PlanReplaceIdentity(r, "anon", profile("durable", "Dee"), "", "s-tab1", "s-tab2", "s-tab1")
	require.NoError(t, err)
	r = apply(t, r, p)

	m := r.User["durable"]
	assert.ElementsMatch(t, []string{"s-tab1", "s-tab2"}, m.ActiveSessions)
	assert.True(t, IsPresent(m))
}

func TestReplaceIdentityNoops(t *testing.T) {
	r := room(t, "a")
	p, err := PlanReplaceIdentity(r, "a", profile("a", "a"), "s")
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = PlanReplaceIdentity(r, "missing", profile("b", "b"), "s")
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = PlanReplaceIdentity(r, "a", profile("", "b"), "s")
	assert.ErrorIs(t, err, domain.ErrUserIDEmpty)
}

func TestDeleteRename(t *testing.T) {
	r := room(t, "a")
	assert.ErrorIs(t, CanDeleteRoom(r, "a"), domain.ErrPermissionDenied)
	assert.NoError(t, CanDeleteRoom(r, "fac"))

	_, err := PlanRenameRoom(r, "a", "x")
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	p, err := PlanRenameRoom(r, "fac", " Retro ")
	require.NoError(t, err)
	assert.Equal(t, "Retro", apply(t, r, p).RoomName)
	p, err = PlanRenameRoom(r, "fac", r.RoomName)
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestUpdateOptions(t *testing.T) {
	r := room(t, "a")
	yes := true
	deck := domain.DeckTShirt

	_, err := PlanUpdateOptions(r, "a", OptionsUpdate{AutoRevealCards: &yes})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	bad := "nope"
	_, err = PlanUpdateOptions(r, "fac", OptionsUpdate{ActiveDeckID: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	p, err := PlanUpdateOptions(r, "fac", OptionsUpdate{AutoRevealCards: &yes, ActiveDeckID: &deck})
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.True(t, r.Option.AutoRevealCards)
	assert.True(t, r.Option.ShowAverage, "untouched flags keep their value")
	got, ok := r.Option.ActiveDeck()
	require.True(t, ok)
	assert.Equal(t, "T-shirt", got.DeckName)
}

func TestUpdateProfile(t *testing.T) {
	r := room(t, "a")
	p, err := PlanUpdateProfile(r, domain.Profile{UserID: "a", DisplayName: " Ann ", ImageURL: "x.png"})
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, "Ann", r.User["a"].DisplayName)
	assert.Equal(t, "x.png", r.User["a"].ImageURL)

	_, err = PlanUpdateProfile(r, domain.Profile{UserID: "ghost", DisplayName: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = PlanUpdateProfile(r, domain.Profile{UserID: "a", DisplayName: ""})
	assert.ErrorIs(t, err, domain.ErrDisplayNameEmpty)
}

func TestAutoReveal(t *testing.T) {
	r := room(t, "a", "b")
	r.Option.AutoRevealCards = true
	r = cast(t, r, "a", "5")
	r = cast(t, r, "b", "5")
	assert.False(t, ShouldAutoReveal(r), "facilitator has not voted")

	r = cast(t, r, "fac", "8")
	require.True(t, ShouldAutoReveal(r))
	p, err := PlanAutoReveal(r, t0, "")
	require.NoError(t, err)
	r = apply(t, r, p)
	assert.Equal(t, domain.StatusOpened, r.EstimateStatus)
	assert.Equal(t, "6", r.History["tok0"].Result)

	p, err = PlanAutoReveal(r, t0, "")
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestDerive(t *testing.T) {
	r := room(t, "a", "watcher")
	r.User["watcher"].IsSpectator = true
	r = cast(t, r, "a", "3")

	v := Derive(r)
	assert.Equal(t, []domain.UserID{"a", "fac", "watcher"}, v.Present)
	assert.Equal(t, []domain.UserID{"a", "fac"}, v.Voters)
	assert.False(t, v.AllVoted)
	assert.Nil(t, v.Summary)

	r = cast(t, r, "fac", "5")
	p, err := PlanReveal(r, "fac", t0, "")
	require.NoError(t, err)
	v = Derive(apply(t, r, p))
	assert.True(t, v.AllVoted)
	require.NotNil(t, v.Summary)
	assert.Equal(t, "4", v.Average)
}

func TestNewRoundToken(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		tok := NewRoundToken()
		require.Len(t, tok, TokenLen)
		for _, c := range tok {
			assert.Contains(t, tokenAlphabet, string(c))
		}
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
