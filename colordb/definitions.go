package colordb

import (
	"context"
	"bytes"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lightninglabs/smartcolors/color"
	"github.com/lightninglabs/smartcolors/colordb/sqlc"
	"github.com/lightningnetwork/lnd/clock"
)

type (
	// NewDefinition wraps the params needed to insert a new definition.
	NewDefinition = sqlc.UpsertColorDefinitionParams

	// DefinitionRow is a definition as stored in the database.
	DefinitionRow = sqlc.ColorDefinition

	// NewMetadata wraps the params needed to insert a metadata entry.
	NewMetadata = sqlc.UpsertColorMetadataParams

	// MetadataRow is a metadata entry as stored in the database.
	MetadataRow = sqlc.ColorMetadatum
)

var (
	// ErrDefinitionNotFound is returned when a definition isn't known to
	// the store.
	ErrDefinitionNotFound = errors.New("color definition not found")

	// ErrDefinitionNameTaken is returned when a different definition is
	// already stored under the same name.
	ErrDefinitionNameTaken = errors.New("color definition name taken")
)

// DefinitionQueries is the set of queries the definition store needs.
type DefinitionQueries interface {
	// UpsertColorDefinition inserts a definition if it isn't known yet
	// and returns its primary key.
	UpsertColorDefinition(ctx context.Context,
		arg NewDefinition) (int32, error)

	// UpsertColorMetadata inserts or updates a metadata entry.
	UpsertColorMetadata(ctx context.Context, arg NewMetadata) error

	// FetchColorDefinition fetches the definition with the given color ID.
	FetchColorDefinition(ctx context.Context,
		colorID []byte) (DefinitionRow, error)

	// FetchColorDefinitions fetches all definitions ordered by color ID.
	FetchColorDefinitions(ctx context.Context) ([]DefinitionRow, error)

	// FetchColorMetadata fetches the metadata of a definition.
	FetchColorMetadata(ctx context.Context,
		definitionID int32) ([]MetadataRow, error)

	// DeleteColorDefinition deletes a definition and its metadata.
	DeleteColorDefinition(ctx context.Context, colorID []byte) (int64,
		error)

	// DeleteProofEntries deletes the cached proof of a color.
	DeleteProofEntries(ctx context.Context, colorID []byte) error
}

// BatchedDefinitionQueries is a version of the DefinitionQueries that's
// capable of batched database operations.
type BatchedDefinitionQueries interface {
	DefinitionQueries

	BatchedTx[DefinitionQueries]
}

// DefinitionStore persists the color definitions the daemon tracks.
type DefinitionStore struct {
	db BatchedDefinitionQueries

	clock clock.Clock
}

// NewDefinitionStore creates a new DefinitionStore from the given database.
func NewDefinitionStore(db BatchedDefinitionQueries,
	clock clock.Clock) *DefinitionStore {

	return &DefinitionStore{
		db:    db,
		clock: clock,
	}
}

// SaveDefinition stores a definition together with its metadata. Storing a
// definition that is already known is a no-op apart from updating its
// metadata.
func (d *DefinitionStore) SaveDefinition(ctx context.Context,
	def *color.Definition) error {

	id := def.ID()

	var name sql.NullString
	if def.Name() != "" {
		name = sql.NullString{
			String: def.Name(),
			Valid:  true,
		}
	}

	return d.db.ExecTx(ctx, NewWriteTx(), func(q DefinitionQueries) error {
		defID, err := q.UpsertColorDefinition(ctx, NewDefinition{
			ColorID: id[:],
			Name:    name,
			Payload: def.Payload(),
			Network: color.NetworkName(def.Params()),
			AddedAt: d.clock.Now().UTC(),
		})
		switch {
		case IsUniqueConstraintViolation(MapSQLError(err)):
			return fmt.Errorf("%w: %v", ErrDefinitionNameTaken,
				def.Name())

		case err != nil:
			return fmt.Errorf("unable to insert definition: %w",
				err)
		}

		metadata := def.Metadata()
		for _, key := range def.MetadataKeys() {
			err := q.UpsertColorMetadata(ctx, NewMetadata{
				DefinitionID: defID,
				MetaKey:      key,
				MetaValue:    metadata[key],
			})
			if err != nil {
				return fmt.Errorf("unable to insert metadata "+
					"%v: %w", key, err)
			}
		}

		log.Debugf("Stored definition %v", def)

		return nil
	})
}

// FetchDefinition fetches the definition with the given ID.
func (d *DefinitionStore) FetchDefinition(ctx context.Context,
	id color.ID) (*color.Definition, error) {

	var def *color.Definition
	err := d.db.ExecTx(ctx, NewReadTx(), func(q DefinitionQueries) error {
		row, err := q.FetchColorDefinition(ctx, id[:])
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %v", ErrDefinitionNotFound, id)

		case err != nil:
			return err
		}

		def, err = decodeDefinitionRow(ctx, q, row)
		return err
	})
	if err != nil {
		return nil, err
	}

	return def, nil
}

// FetchDefinitions fetches all stored definitions ordered by ID.
func (d *DefinitionStore) FetchDefinitions(
	ctx context.Context) ([]*color.Definition, error) {

	var defs []*color.Definition
	err := d.db.ExecTx(ctx, NewReadTx(), func(q DefinitionQueries) error {
		rows, err := q.FetchColorDefinitions(ctx)
		if err != nil {
			return err
		}

		defs = make([]*color.Definition, 0, len(rows))
		for _, row := range rows {
			def, err := decodeDefinitionRow(ctx, q, row)
			if err != nil {
				return err
			}

			defs = append(defs, def)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}

// DeleteDefinition removes a definition along with its cached proof.
func (d *DefinitionStore) DeleteDefinition(ctx context.Context,
	id color.ID) error {

	return d.db.ExecTx(ctx, NewWriteTx(), func(q DefinitionQueries) error {
		numRows, err := q.DeleteColorDefinition(ctx, id[:])
		if err != nil {
			return err
		}
		if numRows == 0 {
			return fmt.Errorf("%w: %v", ErrDefinitionNotFound, id)
		}

		return q.DeleteProofEntries(ctx, id[:])
	})
}

// decodeDefinitionRow turns a stored definition back into a definition and
// makes sure the payload still hashes to the stored ID.
func decodeDefinitionRow(ctx context.Context, q DefinitionQueries,
	row DefinitionRow) (*color.Definition, error) {

	metaRows, err := q.FetchColorMetadata(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch metadata: %w", err)
	}

	metadata := make(map[string]string, len(metaRows))
	for _, m := range metaRows {
		metadata[m.MetaKey] = m.MetaValue
	}

	params, err := color.NetworkParams(row.Network)
	if err != nil {
		return nil, err
	}

	def, err := color.DecodeDefinition(row.Payload, metadata, params)
	if err != nil {
		return nil, err
	}

	id := def.ID()
	if !bytes.Equal(id[:], row.ColorID) {
		return nil, fmt.Errorf("stored definition %x hashes to %v",
			row.ColorID, id)
	}

	return def, nil
}
