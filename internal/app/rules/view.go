package rules

import "github.com/dkeye/Poker/internal/domain"

// View is state every client derives from the raw document. It is
// recomputed for each snapshot and never stored.
type View struct {
	Present      []domain.UserID `json:"present"`
	Voters       []domain.UserID `json:"voters"`
	AllVoted     bool            `json:"allVoted"`
	Facilitators []domain.UserID `json:"facilitators"`
	Summary      *Summary        `json:"summary,omitempty"`
	Average      string          `json:"average,omitempty"`
}

func Derive(r *domain.Room) View {
	v := View{
		Present:      PresentMembers(r),
		Voters:       ActiveVoters(r),
		Facilitators: r.Facilitators(),
	}
	v.AllVoted = len(v.Voters) > 0
	for _, id := range v.Voters {
		if !r.User[id].HasEstimate() {
			v.AllVoted = false
			break
		}
	}
	if r.EstimateStatus.Revealed() {
		s := Summarize(r)
		v.Summary = &s
		if r.Option.ShowAverage && s.HasNumeric {
			v.Average = FormatAverage(s.Average)
		}
	}
	return v
}
