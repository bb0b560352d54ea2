package core

import (
	"context"

	"github.com/dkeye/Poker/internal/domain"
)

//go:generate mockgen -source=room_iface.go -destination=mocks/mock_room.go -package=mocks

// Snapshot is a committed room document as seen by subscribers.
// Room is nil when the document was deleted. The Room value is shared
// between subscribers and must be treated as read-only.
type Snapshot struct {
	RoomID domain.RoomID
	Room   *domain.Room
}

func (s Snapshot) Exists() bool { return s.Room != nil }

// Subscription delivers the latest committed snapshot. The channel holds at
// most one value: a newer snapshot replaces an undelivered older one.
// Close releases the subscription and closes the channel.
type Subscription interface {
	C() <-chan Snapshot
	Close()
}

// DocumentStore is the room persistence and change-feed primitive.
// Update applies a patch atomically to one document; concurrent writers to
// the same field race and the later commit wins silently.
type DocumentStore interface {
	Get(ctx context.Context, id domain.RoomID) (*domain.Room, error)
	Put(ctx context.Context, room *domain.Room) error
	Update(ctx context.Context, id domain.RoomID, patch Patch) error
	Delete(ctx context.Context, id domain.RoomID) error
	Subscribe(ctx context.Context, id domain.RoomID) (Subscription, error)
	QueryByMember(ctx context.Context, uid domain.UserID) ([]*domain.Room, error)
}
