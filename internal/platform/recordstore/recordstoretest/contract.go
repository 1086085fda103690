// Package recordstoretest holds the behaviour every record store driver must
// share. Driver packages call Run from their own tests.
package recordstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffdesk/internal/platform/recordstore"
)

type Factory func(t *testing.T) recordstore.Store

func Run(t *testing.T, newStore Factory) {
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, newStore(t)) })
	t.Run("WriteAndRead", func(t *testing.T) { testWriteAndRead(t, newStore(t)) })
	t.Run("ReplaceSubtree", func(t *testing.T) { testReplaceSubtree(t, newStore(t)) })
	t.Run("DeletePrunesParents", func(t *testing.T) { testDeletePrunes(t, newStore(t)) })
	t.Run("MultiPathMove", func(t *testing.T) { testMultiPathMove(t, newStore(t)) })
	t.Run("LeafBecomesObject", func(t *testing.T) { testLeafBecomesObject(t, newStore(t)) })
	t.Run("RejectsBadUpdates", func(t *testing.T) { testRejectsBadUpdates(t, newStore(t)) })
	t.Run("PushKeysOrdered", func(t *testing.T) { testPushKeys(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func testReadMissing(t *testing.T, s recordstore.Store) {
	node, err := s.Read(context.Background(), "staff/active/nobody")
	require.NoError(t, err)
	require.False(t, node.Exists())
	require.Equal(t, "nobody", node.Key())
}

func testWriteAndRead(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	err := s.Update(ctx, recordstore.Updates{
		"staff/active/s1": map[string]any{
			"firstName": "Asha",
			"payments":  []any{map[string]any{"amount": "500"}},
			"address":   map[string]any{"pincode": "560001"},
		},
	})
	require.NoError(t, err)

	node, err := s.Read(ctx, "staff/active/s1")
	require.NoError(t, err)
	require.True(t, node.Exists())

	var out struct {
		FirstName string `json:"firstName"`
		Payments  []struct {
			Amount string `json:"amount"`
		} `json:"payments"`
		Address struct {
			Pincode string `json:"pincode"`
		} `json:"address"`
	}
	require.NoError(t, node.Decode(&out))
	require.Equal(t, "Asha", out.FirstName)
	require.Len(t, out.Payments, 1)
	require.Equal(t, "500", out.Payments[0].Amount)
	require.Equal(t, "560001", out.Address.Pincode)

	leaf, err := s.Read(ctx, "staff/active/s1/address/pincode")
	require.NoError(t, err)
	require.Equal(t, "560001", leaf.Value())

	parent, err := s.Read(ctx, "staff/active")
	require.NoError(t, err)
	require.Len(t, parent.Children(), 1)
}

func testReplaceSubtree(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, recordstore.Updates{"operators/u1": map[string]any{"a": "1", "b": "2"}}))
	require.NoError(t, s.Update(ctx, recordstore.Updates{"operators/u1": map[string]any{"a": "3"}}))

	node, err := s.Read(ctx, "operators/u1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": "3"}, node.Value())
}

func testDeletePrunes(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/exited/s9/firstName": "Ravi"}))
	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/exited/s9": nil}))

	node, err := s.Read(ctx, "staff/exited")
	require.NoError(t, err)
	require.False(t, node.Exists())
}

func testMultiPathMove(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	record := map[string]any{"idNo": "E100", "firstName": "Asha"}
	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/s1": record}))

	require.NoError(t, s.Update(ctx, recordstore.Updates{
		"staff/active/s1":        nil,
		"staff/exited/s1":        record,
		"audit/lifecycle/k1/ref": "s1",
	}))

	active, err := s.Read(ctx, "staff/active/s1")
	require.NoError(t, err)
	require.False(t, active.Exists())
	exited, err := s.Read(ctx, "staff/exited/s1")
	require.NoError(t, err)
	require.True(t, exited.Exists())
	audit, err := s.Read(ctx, "audit/lifecycle/k1/ref")
	require.NoError(t, err)
	require.Equal(t, "s1", audit.Value())
}

func testLeafBecomesObject(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, recordstore.Updates{"jobRuns/r1": "pending"}))
	require.NoError(t, s.Update(ctx, recordstore.Updates{"jobRuns/r1/status": "done"}))

	node, err := s.Read(ctx, "jobRuns/r1")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"status": "done"}, node.Value())
}

func testRejectsBadUpdates(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	err := s.Update(ctx, recordstore.Updates{"staff/active/s1": "x", "staff/active/s1/idNo": "E1"})
	require.True(t, errors.Is(err, recordstore.ErrOverlappingPath), "got %v", err)

	err = s.Update(ctx, recordstore.Updates{"staff/act.ive/s1": "x"})
	require.True(t, errors.Is(err, recordstore.ErrInvalidPath), "got %v", err)

	node, err := s.Read(ctx, "staff")
	require.NoError(t, err)
	require.False(t, node.Exists())
}

func testPushKeys(t *testing.T, s recordstore.Store) {
	ctx := context.Background()
	prev := ""
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := s.Push(ctx, "audit/lifecycle")
		require.NoError(t, err)
		require.NoError(t, recordstore.ValidateKey(key))
		require.False(t, seen[key])
		require.Greater(t, key, prev)
		seen[key] = true
		prev = key
	}
}

func testSubscribe(t *testing.T, s recordstore.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/a": map[string]any{"idNo": "E1"}}))

	events := make(chan recordstore.Event, 32)
	unsubscribe, err := s.Subscribe(ctx, "staff/active", func(ev recordstore.Event) { events <- ev })
	require.NoError(t, err)
	defer unsubscribe()

	expect(t, events, recordstore.ChildAdded, "a")
	expect(t, events, recordstore.ValueChanged, "active")

	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/b/idNo": "E2"}))
	expect(t, events, recordstore.ChildAdded, "b")
	expect(t, events, recordstore.ValueChanged, "active")

	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/a/idNo": "E1X"}))
	ev := expect(t, events, recordstore.ChildChanged, "a")
	require.Equal(t, "E1X", ev.Node.Child("idNo").Value())
	expect(t, events, recordstore.ValueChanged, "active")

	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/a": nil, "staff/exited/a": map[string]any{"idNo": "E1X"}}))
	ev = expect(t, events, recordstore.ChildRemoved, "a")
	require.Equal(t, "E1X", ev.Node.Child("idNo").Value())
	expect(t, events, recordstore.ValueChanged, "active")

	// Writes elsewhere never reach the listener.
	require.NoError(t, s.Update(ctx, recordstore.Updates{"operators/u1/name": "x"}))
	unsubscribe()
	require.NoError(t, s.Update(ctx, recordstore.Updates{"staff/active/c/idNo": "E3"}))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after unsubscribe: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func expect(t *testing.T, events <-chan recordstore.Event, typ recordstore.EventType, key string) recordstore.Event {
	t.Helper()
	select {
	case ev := <-events:
		require.Equal(t, typ, ev.Type, "event %+v", ev)
		require.Equal(t, key, ev.Key)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s %s", typ, key)
		return recordstore.Event{}
	}
}
