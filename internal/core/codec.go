package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Poker/internal/domain"
)

// Rooms travel as generic JSON objects so field patches can address any
// nested path without knowing the Go types.

func EncodeRoom(r *domain.Room) (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}
	return DecodeDoc(b)
}

func DecodeRoom(doc map[string]any) (*domain.Room, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return UnmarshalRoom(b)
}

func UnmarshalRoom(b []byte) (*domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &r, nil
}

func DecodeDoc(b []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// ApplyJSON applies p to an encoded document and returns the new encoding
// together with the decoded room. The input is never modified.
func ApplyJSON(raw []byte, p Patch) ([]byte, *domain.Room, error) {
	doc, err := DecodeDoc(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := Apply(doc, p); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document: %w", err)
	}
	room, err := UnmarshalRoom(out)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	return out, room, nil
}

// MemberKeys lists the roster keys of an encoded document without a full
// decode. Stores use it to maintain member indexes.
func MemberKeys(doc map[string]any) []domain.UserID {
	users, _ := doc["user"].(map[string]any)
	out := make([]domain.UserID, 0, len(users))
	for k, v := range users {
		if v != nil {
			out = append(out, domain.UserID(k))
		}
	}
	return out
}
