package app

import (
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a listener whose send buffer is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction {
	return KickMember
}

// DropPolicy skips the frame. Snapshots are full documents, so the next one
// brings a slow listener up to date anyway.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room domain.RoomID, sid core.SessionID) BackpressureAction {
	return DropFrame
}

func PolicyByName(name string) Policy {
	switch name {
	case "drop":
		return DropPolicy{}
	default:
		return SimplePolicy{}
	}
}
