// Package storetest is a conformance suite every DocumentStore must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

const waitTimeout = 3 * time.Second

func NewRoom(id domain.RoomID, members ...domain.UserID) *domain.Room {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	r := &domain.Room{
		RoomID:         id,
		RoomName:       "Room " + string(id),
		Session:        "tok0",
		EstimateStatus: domain.StatusClosed,
		User:           map[domain.UserID]*domain.Member{},
		Option:         domain.DefaultOptions(),
		History:        map[string]domain.RoundRecord{},
		VotingAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, uid := range members {
		r.User[uid] = &domain.Member{
			DisplayName:    string(uid),
			ActiveSessions: []string{fmt.Sprintf("s%d", i)},
			IsFacilitator:  i == 0,
		}
	}
	return r
}

// WaitFor reads snapshots until match accepts one.
func WaitFor(t *testing.T, sub core.Subscription, match func(core.Snapshot) bool) core.Snapshot {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case snap, ok := <-sub.C():
			require.True(t, ok, "subscription closed")
			if match(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return core.Snapshot{}
		}
	}
}

// Run exercises the whole contract against a fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) core.DocumentStore) {
	ctx := context.Background()

	t.Run("missing documents", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.ErrorIs(t, s.Update(ctx, "nope", core.Patch{core.Set("roomName", "x")}), domain.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "nope"), domain.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		in := NewRoom("r1", "alice", "bob")
		require.NoError(t, s.Put(ctx, in))

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, in.RoomName, got.RoomName)
		assert.True(t, in.VotingAt.Equal(got.VotingAt))
		assert.Len(t, got.User, 2)
		assert.True(t, got.User["alice"].IsFacilitator)
		assert.Len(t, got.Option.EstimateOption.Decks, len(domain.DefaultDecks()))
	})

	t.Run("update applies field ops", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		point := "5"
		require.NoError(t, s.Update(ctx, "r1", core.Patch{
			core.Set(core.MemberPath("alice", "estimatePoint"), &point),
			core.ArrayUnion(core.MemberPath("alice", "activeSessions"), "s9"),
			core.Set("issueName", "PROJ-1"),
		}))
		require.NoError(t, s.Update(ctx, "r1", core.Patch{
			core.ArrayRemove(core.MemberPath("alice", "activeSessions"), "s0"),
			core.Delete("issueName"),
		}))

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		m := got.User["alice"]
		require.NotNil(t, m.EstimatePoint)
		assert.Equal(t, "5", *m.EstimatePoint)
		assert.Equal(t, []string{"s9"}, m.ActiveSessions)
		assert.Empty(t, got.IssueName)
	})

	t.Run("bad patch leaves document untouched", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		err := s.Update(ctx, "r1", core.Patch{
			core.Set("roomName", "changed"),
			core.Set("user", "not an object"),
		})
		require.ErrorIs(t, err, domain.ErrInvalidArgument)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "Room r1", got.RoomName)
	})

	t.Run("subscribe sees initial, updates and delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		sub, err := s.Subscribe(ctx, "r1")
		require.NoError(t, err)
		defer sub.Close()

		first := WaitFor(t, sub, func(core.Snapshot) bool { return true })
		require.True(t, first.Exists())
		assert.Equal(t, domain.RoomID("r1"), first.RoomID)

		require.NoError(t, s.Update(ctx, "r1", core.Patch{core.Set("roomName", "renamed")}))
		WaitFor(t, sub, func(sn core.Snapshot) bool { return sn.Exists() && sn.Room.RoomName == "renamed" })

		require.NoError(t, s.Delete(ctx, "r1"))
		gone := WaitFor(t, sub, func(sn core.Snapshot) bool { return !sn.Exists() })
		assert.Equal(t, domain.RoomID("r1"), gone.RoomID)
		_, err = s.Get(ctx, "r1")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("subscribe to missing room", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Subscribe(ctx, "later")
		require.NoError(t, err)
		defer sub.Close()
		first := WaitFor(t, sub, func(core.Snapshot) bool { return true })
		assert.False(t, first.Exists())

		require.NoError(t, s.Put(ctx, NewRoom("later", "alice")))
		WaitFor(t, sub, func(sn core.Snapshot) bool { return sn.Exists() })
	})

	t.Run("slow subscriber converges to latest", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		sub, err := s.Subscribe(ctx, "r1")
		require.NoError(t, err)
		defer sub.Close()

		for i := range 20 {
			require.NoError(t, s.Update(ctx, "r1", core.Patch{core.Set("issueName", fmt.Sprintf("issue-%d", i))}))
		}
		WaitFor(t, sub, func(sn core.Snapshot) bool { return sn.Exists() && sn.Room.IssueName == "issue-19" })
	})

	t.Run("close ends the channel", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		sub, err := s.Subscribe(ctx, "r1")
		require.NoError(t, err)
		sub.Close()
		deadline := time.After(waitTimeout)
		for {
			select {
			case _, ok := <-sub.C():
				if !ok {
					return
				}
			case <-deadline:
				t.Fatal("channel not closed")
			}
		}
	})

	t.Run("query by member", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice", "bob")))
		require.NoError(t, s.Put(ctx, NewRoom("r2", "bob")))
		require.NoError(t, s.Put(ctx, NewRoom("r3", "carol")))

		ids := func(uid domain.UserID) []domain.RoomID {
			rooms, err := s.QueryByMember(ctx, uid)
			require.NoError(t, err)
			var out []domain.RoomID
			for _, r := range rooms {
				out = append(out, r.RoomID)
			}
			return out
		}
		assert.ElementsMatch(t, []domain.RoomID{"r1", "r2"}, ids("bob"))
		assert.ElementsMatch(t, []domain.RoomID{"r1"}, ids("alice"))
		assert.Empty(t, ids("nobody"))

		// membership follows patches and deletes
		require.NoError(t, s.Update(ctx, "r1", core.Patch{
			core.Set(core.MemberPath("dave", "displayName"), "Dave"),
			core.Delete(core.MemberPath("bob", "")),
		}))
		require.NoError(t, s.Delete(ctx, "r2"))
		assert.Empty(t, ids("bob"))
		assert.ElementsMatch(t, []domain.RoomID{"r1"}, ids("dave"))
	})

	t.Run("concurrent updates are atomic per document", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRoom("r1", "alice")))
		var wg sync.WaitGroup
		const n = 16
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Update(ctx, "r1", core.Patch{
					core.ArrayUnion(core.MemberPath("alice", "activeSessions"), fmt.Sprintf("c%d", i)),
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, got.User["alice"].ActiveSessions, n+1)
	})
}
