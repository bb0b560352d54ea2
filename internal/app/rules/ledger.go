package rules

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

type Summary struct {
	Histogram  map[string]int `json:"histogram"`
	Average    float64        `json:"average"`
	HasNumeric bool           `json:"hasNumeric"`
	Voted      int            `json:"voted"`
	Total      int            `json:"total"`
}

// Summarize aggregates every cast estimate, present or not.
func Summarize(r *domain.Room) Summary {
	s := Summary{Histogram: map[string]int{}}
	var sum float64
	var numeric int
	for _, m := range r.User {
		if !m.HasEstimate() {
			continue
		}
		v := *m.EstimatePoint
		s.Histogram[v]++
		s.Total++
		if f, ok := parseNumeric(v); ok {
			sum += f
			numeric++
		}
	}
	s.Voted = s.Total
	if numeric > 0 {
		s.HasNumeric = true
		s.Average = sum / float64(numeric)
	}
	return s
}

// Majority returns the most frequent value. Ties go to the lexicographically
// smallest value so every replica computes the same answer.
func (s Summary) Majority() string {
	best, bestCount := "", 0
	for v, n := range s.Histogram {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best
}

func (s Summary) Result() string {
	if s.HasNumeric {
		return FormatAverage(s.Average)
	}
	return s.Majority()
}

// FormatAverage rounds to two decimals and groups thousands.
func FormatAverage(x float64) string {
	return humanize.Commaf(math.Round(x*100) / 100)
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return twoDigits(total/3600) + ":" + twoDigits(total/60%60) + ":" + twoDigits(total%60)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func parseNumeric(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// BuildRoundRecord freezes the current round for history.
func BuildRoundRecord(r *domain.Room, now time.Time) domain.RoundRecord {
	s := Summarize(r)
	rec := domain.RoundRecord{
		IssueName:    r.IssueName,
		Result:       s.Result(),
		Date:         now,
		Voted:        s.Voted,
		Total:        s.Total,
		PlayerResult: []domain.PlayerResult{},
	}
	if !r.VotingAt.IsZero() {
		rec.Duration = FormatDuration(now.Sub(r.VotingAt))
	}
	for _, id := range r.MemberIDs() {
		m := r.User[id]
		if m.HasEstimate() {
			rec.PlayerResult = append(rec.PlayerResult, domain.PlayerResult{
				DisplayName:   m.DisplayName,
				EstimatePoint: *m.EstimatePoint,
			})
		}
	}
	return rec
}

// ValidateEstimate accepts any value when the active deck does not resolve.
func ValidateEstimate(r *domain.Room, point string) error {
	deck, ok := r.Option.ActiveDeck()
	if !ok {
		return nil
	}
	if !slices.Contains(deck.DeckValues, point) {
		return domain.ErrInvalidEstimate
	}
	return nil
}

// PlanCast sets or clears (point == nil) the caller's estimate.
func PlanCast(r *domain.Room, uid domain.UserID, point *string) (core.Patch, error) {
	m, ok := r.Member(uid)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.EstimateStatus.Revealed() {
		return nil, domain.ErrVotingClosed
	}
	if point != nil {
		if m.IsSpectator {
			return nil, domain.ErrPermissionDenied
		}
		if err := ValidateEstimate(r, *point); err != nil {
			return nil, err
		}
	}
	return core.Patch{core.Set(core.MemberPath(uid, "estimatePoint"), point)}, nil
}

// PlanClearEstimate removes one member's estimate. Clearing someone else's
// needs facilitator rights or allowOthersToDeleteEstimates.
func PlanClearEstimate(r *domain.Room, caller, target domain.UserID) (core.Patch, error) {
	if target == "" {
		target = caller
	}
	if target != caller && !r.IsFacilitator(caller) && !r.Option.AllowOthersToDeleteEstimates {
		return nil, domain.ErrPermissionDenied
	}
	m, ok := r.Member(target)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.EstimateStatus.Revealed() {
		return nil, domain.ErrVotingClosed
	}
	if !m.HasEstimate() {
		return nil, nil
	}
	return core.Patch{core.Set(core.MemberPath(target, "estimatePoint"), nil)}, nil
}
