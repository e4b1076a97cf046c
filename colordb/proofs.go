package colordb

import (
	"context"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/colordb/sqlc"
	"github.com/lightninglabs/smartcolors/proof"
	"github.com/lightninglabs/smartcolors/scanner"
)

type (
	// NewProofEntry wraps the params needed to insert a proof entry.
	NewProofEntry = sqlc.UpsertProofEntryParams

	// ProofEntryRow is a proof entry as stored in the database.
	ProofEntryRow = sqlc.ProofEntry

	// ProofEntryKey identifies a stored proof entry.
	ProofEntryKey = sqlc.DeleteProofEntryParams
)

// ProofQueries is the set of queries the proof store needs.
type ProofQueries interface {
	// UpsertProofEntry inserts an entry or updates its quantity and
	// height.
	UpsertProofEntry(ctx context.Context, arg NewProofEntry) error

	// FetchProofEntries fetches all entries of a color.
	FetchProofEntries(ctx context.Context,
		colorID []byte) ([]ProofEntryRow, error)

	// DeleteProofEntry deletes a single entry.
	DeleteProofEntry(ctx context.Context, arg ProofEntryKey) error

	// DeleteProofEntries deletes all entries of a color.
	DeleteProofEntries(ctx context.Context, colorID []byte) error

	// CountProofEntries counts the entries of a color.
	CountProofEntries(ctx context.Context, colorID []byte) (int64, error)
}

// BatchedProofQueries is a version of the ProofQueries that's capable of
// batched database operations.
type BatchedProofQueries interface {
	ProofQueries

	BatchedTx[ProofQueries]
}

// ProofStore persists the entries of color proofs. It is a cache the scanner
// restores its proofs from on start up.
type ProofStore struct {
	db BatchedProofQueries
}

// NewProofStore creates a new ProofStore from the given database.
func NewProofStore(db BatchedProofQueries) *ProofStore {
	return &ProofStore{
		db: db,
	}
}

// A compile-time assertion to make sure ProofStore satisfies the
// scanner.ProofArchive interface.
var _ scanner.ProofArchive = (*ProofStore)(nil)

// FetchEntries returns all persisted entries of the color.
//
// NOTE: This is part of the scanner.ProofArchive interface.
func (p *ProofStore) FetchEntries(ctx context.Context,
	id color.ID) ([]proof.Entry, error) {

	var entries []proof.Entry
	err := p.db.ExecTx(ctx, NewReadTx(), func(q ProofQueries) error {
		rows, err := q.FetchProofEntries(ctx, id[:])
		if err != nil {
			return err
		}

		entries = make([]proof.Entry, 0, len(rows))
		for _, row := range rows {
			entry, err := unmarshalEntry(row)
			if err != nil {
				return err
			}

			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to fetch entries of %v: %w", id,
			err)
	}

	log.Debugf("Fetched %d proof entries of %v", len(entries), id)

	return entries, nil
}

// ApplyDelta persists the changes one Observe or Rollback applied to the
// proof of the color. The delta is applied atomically.
//
// NOTE: This is part of the scanner.ProofArchive interface.
func (p *ProofStore) ApplyDelta(ctx context.Context, id color.ID,
	delta *proof.Delta) error {

	if delta.IsEmpty() {
		return nil
	}

	log.Tracef("Applying delta to %v: %v", id, newLogClosure(func() string {
		return spew.Sdump(delta)
	}))

	return p.db.ExecTx(ctx, NewWriteTx(), func(q ProofQueries) error {
		for _, op := range delta.Removed {
			err := q.DeleteProofEntry(ctx, ProofEntryKey{
				ColorID:     id[:],
				Txid:        op.Hash[:],
				OutputIndex: int64(op.Index),
			})
			if err != nil {
				return fmt.Errorf("unable to delete entry %v: "+
					"%w", op, err)
			}
		}

		for _, entry := range delta.Added {
			err := q.UpsertProofEntry(ctx, marshalEntry(id, entry))
			if err != nil {
				return fmt.Errorf("unable to store entry %v: "+
					"%w", entry.OutPoint, err)
			}
		}

		return nil
	})
}

// NumEntries returns the number of persisted entries of the color.
func (p *ProofStore) NumEntries(ctx context.Context, id color.ID) (int,
	error) {

	var count int64
	err := p.db.ExecTx(ctx, NewReadTx(), func(q ProofQueries) error {
		var err error
		count, err = q.CountProofEntries(ctx, id[:])
		return err
	})

	return int(count), err
}

// Clear drops all persisted entries of the color. The scanner rebuilds them
// from chain data.
func (p *ProofStore) Clear(ctx context.Context, id color.ID) error {
	return p.db.ExecTx(ctx, NewWriteTx(), func(q ProofQueries) error {
		return q.DeleteProofEntries(ctx, id[:])
	})
}

// marshalEntry maps an entry onto its row. Quantities use the full unsigned
// range and are stored with their bits reinterpreted as a signed integer.
func marshalEntry(id color.ID, entry proof.Entry) NewProofEntry {
	return NewProofEntry{
		ColorID:     id[:],
		Txid:        entry.OutPoint.Hash[:],
		OutputIndex: int64(entry.OutPoint.Index),
		Quantity:    int64(entry.Quantity),
		Height:      int64(entry.Height),
	}
}

// unmarshalEntry is the inverse of marshalEntry.
func unmarshalEntry(row ProofEntryRow) (proof.Entry, error) {
	hash, err := chainhash.NewHash(row.Txid)
	if err != nil {
		return proof.Entry{}, err
	}

	if row.OutputIndex < 0 || row.OutputIndex > math.MaxUint32 {
		return proof.Entry{}, fmt.Errorf("invalid output index %d",
			row.OutputIndex)
	}
	if row.Height < 0 || row.Height > math.MaxUint32 {
		return proof.Entry{}, fmt.Errorf("invalid height %d",
			row.Height)
	}

	return proof.Entry{
		OutPoint: wire.OutPoint{
			Hash:  *hash,
			Index: uint32(row.OutputIndex),
		},
		Quantity: uint64(row.Quantity),
		Height:   uint32(row.Height),
	}, nil
}
