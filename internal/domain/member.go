package domain

import "time"

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	DisplayName    string     `json:"displayName"`
	ImageURL       string     `json:"imageURL,omitempty"`
	EstimatePoint  *string    `json:"estimatePoint"`
	ActiveSessions []string   `json:"activeSessions"`
	IsSpectator    bool       `json:"isSpectator,omitempty"`
	IsFacilitator  bool       `json:"isFacilitator,omitempty"`
	JoinedAt       *time.Time `json:"joinedAt,omitempty"`
}

func (m *Member) HasEstimate() bool {
	return m != nil && m.EstimatePoint != nil
}
