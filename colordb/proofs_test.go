package colordb

import (
	"bytes"
	"context"
	"math"
	"sort"
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/internal/test"
	"github.com/lightninglabs/smartcolors/proof"
	"github.com/stretchr/testify/require"
)

// randDelta returns a delta adding num random entries.
func randDelta(num int) *proof.Delta {
	delta := &proof.Delta{}
	for i := 0; i < num; i++ {
		delta.Added = append(delta.Added, proof.Entry{
			OutPoint: test.RandOutPoint(),
			Quantity: uint64(i + 1),
			Height:   uint32(100 + i),
		})
	}

	return delta
}

// sortedEntries returns the entries in the order the store returns them.
func sortedEntries(entries []proof.Entry) []proof.Entry {
	sorted := make([]proof.Entry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].OutPoint, sorted[j].OutPoint
		cmp := bytes.Compare(a.Hash[:], b.Hash[:])
		if cmp != 0 {
			return cmp < 0
		}
		return a.Index < b.Index
	})

	return sorted
}

func TestProofStoreApplyDelta(t *testing.T) {
	t.Parallel()

	_, store := newDefinitionStore(t)
	ctx := context.Background()

	var gold, silver color.ID
	copy(gold[:], test.RandBytes(32))
	copy(silver[:], test.RandBytes(32))

	// Nothing is stored for an unknown color.
	entries, err := store.FetchEntries(ctx, gold)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Quantities and heights use their full unsigned range.
	delta := randDelta(4)
	delta.Added[0].Quantity = math.MaxUint64
	delta.Added[1].Height = proof.UnconfirmedHeight
	delta.Added[2].OutPoint.Index = math.MaxUint32
	require.NoError(t, store.ApplyDelta(ctx, gold, delta))

	entries, err = store.FetchEntries(ctx, gold)
	require.NoError(t, err)
	require.Equal(t, sortedEntries(delta.Added), entries)

	// Colors don't see each other's entries.
	require.NoError(t, store.ApplyDelta(ctx, silver, randDelta(2)))
	entries, err = store.FetchEntries(ctx, gold)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// A confirmation re-adds an entry with its new height, a rollback
	// removes entries.
	confirmed := delta.Added[1]
	confirmed.Height = 500
	require.NoError(t, store.ApplyDelta(ctx, gold, &proof.Delta{
		Added:   []proof.Entry{confirmed},
		Removed: []wire.OutPoint{delta.Added[3].OutPoint},
	}))

	entries, err = store.FetchEntries(ctx, gold)
	require.NoError(t, err)
	require.Equal(t, sortedEntries([]proof.Entry{
		delta.Added[0], confirmed, delta.Added[2],
	}), entries)

	// Empty deltas are skipped, removing unknown entries is fine.
	require.NoError(t, store.ApplyDelta(ctx, gold, &proof.Delta{}))
	require.NoError(t, store.ApplyDelta(ctx, gold, &proof.Delta{
		Removed: []wire.OutPoint{test.RandOutPoint()},
	}))

	numEntries, err := store.NumEntries(ctx, gold)
	require.NoError(t, err)
	require.Equal(t, 3, numEntries)

	require.NoError(t, store.Clear(ctx, gold))
	numEntries, err = store.NumEntries(ctx, gold)
	require.NoError(t, err)
	require.Zero(t, numEntries)

	numEntries, err = store.NumEntries(ctx, silver)
	require.NoError(t, err)
	require.Equal(t, 2, numEntries)
}

func TestProofStoreRestore(t *testing.T) {
	t.Parallel()

	_, store := newDefinitionStore(t)
	ctx := context.Background()

	var id color.ID
	copy(id[:], test.RandBytes(32))

	delta := randDelta(5)
	require.NoError(t, store.ApplyDelta(ctx, id, delta))

	entries, err := store.FetchEntries(ctx, id)
	require.NoError(t, err)

	// A proof restored from the store knows every entry.
	def, err := color.NewDefinition(
		[]color.GenesisPoint{
			color.NewScriptGenesis(test.RandP2WPKHScript(t)),
		}, nil, nil, nil,
	)
	require.NoError(t, err)

	p := proof.New(def, nil, nil)
	p.Restore(entries)
	require.Equal(t, 5, p.NumEntries())
	for _, entry := range delta.Added {
		qty, ok := p.QuantityFor(entry.OutPoint)
		require.True(t, ok)
		require.Equal(t, entry.Quantity, qty)
	}
}
