package domain

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxRoomNameLen = 64

type (
	RoomID         string
	EstimateStatus string
)

const (
	StatusClosed EstimateStatus = "CLOSED"
	StatusOpened EstimateStatus = "OPENED"
	// StatusOpening is an advisory hint written by clients while a reveal is
	// in flight. It is never authoritative and reads as CLOSED.
	StatusOpening EstimateStatus = "OPENING"
)

// Revealed reports whether estimates are visible. Anything but OPENED,
// including an empty status on a fresh document, counts as collecting.
func (s EstimateStatus) Revealed() bool { return s == StatusOpened }

type Deck struct {
	DeckID     string   `json:"deckID"`
	DeckName   string   `json:"deckName"`
	DeckValues []string `json:"deckValues"`
	IsDefault  bool     `json:"isDefault,omitempty"`
}

type EstimateOption struct {
	Decks        []Deck `json:"decks"`
	ActiveDeckID string `json:"activeDeckID"`
}

type RoomOptions struct {
	AllowOthersToShowEstimates   bool           `json:"allowOthersToShowEstimates"`
	AllowOthersToDeleteEstimates bool           `json:"allowOthersToDeleteEstimates"`
	AllowOthersToClearUsers      bool           `json:"allowOthersToClearUsers"`
	AutoRevealCards              bool           `json:"autoRevealCards"`
	ShowAverage                  bool           `json:"showAverage"`
	EstimateOption               EstimateOption `json:"estimateOption"`
}

// ActiveDeck resolves activeDeckID against the room's decks.
func (o RoomOptions) ActiveDeck() (Deck, bool) {
	for _, d := range o.EstimateOption.Decks {
		if d.DeckID == o.EstimateOption.ActiveDeckID {
			return d, true
		}
	}
	return Deck{}, false
}

type PlayerResult struct {
	DisplayName   string `json:"displayName"`
	EstimatePoint string `json:"estimatePoint"`
}

// RoundRecord is frozen into Room.History when a round is revealed.
type RoundRecord struct {
	IssueName    string         `json:"issueName,omitempty"`
	Result       string         `json:"result"`
	Duration     string         `json:"duration,omitempty"`
	Date         time.Time      `json:"date"`
	Voted        int            `json:"voted"`
	Total        int            `json:"total"`
	PlayerResult []PlayerResult `json:"playerResult"`
}

type Room struct {
	RoomID         RoomID                 `json:"roomID"`
	RoomName       string                 `json:"roomName"`
	Session        string                 `json:"session"`
	IssueName      string                 `json:"issueName,omitempty"`
	EstimateStatus EstimateStatus         `json:"estimateStatus"`
	User           map[UserID]*Member     `json:"user"`
	Option         RoomOptions            `json:"option"`
	History        map[string]RoundRecord `json:"history,omitempty"`
	VotingAt       time.Time              `json:"votingAt"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

func (r *Room) Member(id UserID) (*Member, bool) {
	if r == nil || r.User == nil {
		return nil, false
	}
	m, ok := r.User[id]
	return m, ok && m != nil
}

// MemberIDs returns roster keys in a stable order.
func (r *Room) MemberIDs() []UserID {
	ids := make([]UserID, 0, len(r.User))
	for id, m := range r.User {
		if m != nil {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Room) IsFacilitator(id UserID) bool {
	m, ok := r.Member(id)
	return ok && m.IsFacilitator
}

// Facilitators normally has exactly one element; concurrent handoffs can
// briefly leave zero or two.
func (r *Room) Facilitators() []UserID {
	var out []UserID
	for _, id := range r.MemberIDs() {
		if r.User[id].IsFacilitator {
			out = append(out, id)
		}
	}
	return out
}

func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrRoomNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return name, nil
}
