package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Poker/internal/adapters/store/storetest"
	"github.com/dkeye/Poker/internal/core"
	"github.com/dkeye/Poker/internal/domain"
)

func setup(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(NewClient(Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.DocumentStore {
		s, _ := setup(t)
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	s, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, storetest.NewRoom("r1", "alice", "bob")))

	assert.True(t, mr.Exists("test:room:r1"))
	members, err := mr.SMembers("test:member:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, members)

	require.NoError(t, s.Update(ctx, "r1", core.Patch{core.Delete(core.MemberPath("alice", ""))}))
	assert.False(t, mr.Exists("test:member:alice"))

	require.NoError(t, s.Delete(ctx, "r1"))
	assert.False(t, mr.Exists("test:room:r1"))
	assert.False(t, mr.Exists("test:member:bob"))
}

func TestTwoStoresShareFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	writer := New(NewClient(Options{Addr: mr.Addr()}), "shared")
	reader := New(NewClient(Options{Addr: mr.Addr()}), "shared")
	defer writer.Close()
	defer reader.Close()
	ctx := context.Background()

	require.NoError(t, writer.Put(ctx, storetest.NewRoom("r1", "alice")))
	sub, err := reader.Subscribe(ctx, "r1")
	require.NoError(t, err)
	defer sub.Close()
	storetest.WaitFor(t, sub, func(sn core.Snapshot) bool { return sn.Exists() })

	require.NoError(t, writer.Update(ctx, "r1", core.Patch{core.Set("estimateStatus", domain.StatusOpened)}))
	storetest.WaitFor(t, sub, func(sn core.Snapshot) bool {
		return sn.Exists() && sn.Room.EstimateStatus == domain.StatusOpened
	})
}

func TestUnavailableIsTransient(t *testing.T) {
	s, mr := setup(t)
	mr.Close()
	_, err := s.Get(context.Background(), "r1")
	require.ErrorIs(t, err, domain.ErrTransient)
	err = s.Update(context.Background(), "r1", core.Patch{core.Set("roomName", "x")})
	require.ErrorIs(t, err, domain.ErrTransient)
}
