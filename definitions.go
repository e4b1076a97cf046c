package smartcolors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/smartcolors/chanutils"
	"github.com/lightninglabs/smartcolors/color"
)

// definitionFileExt is the extension of the definition files the daemon
// loads on startup.
const definitionFileExt = ".json"

// LoadDefinitions decodes every JSON definition file in the directory for the
// given network. The definitions are returned in file name order. A missing
// directory holds no definitions.
func LoadDefinitions(ctx context.Context, dir string,
	params *chaincfg.Params) ([]*color.Definition, error) {

	if dir == "" {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"+definitionFileExt))
	if err != nil {
		return nil, err
	}

	defs := make([]*color.Definition, len(files))
	indices := make([]int, len(files))
	for i := range indices {
		indices[i] = i
	}

	err = chanutils.ErrGroup(ctx, func(ctx context.Context, i int) error {
		def, err := loadDefinitionFile(files[i], params)
		if err != nil {
			return err
		}

		defs[i] = def
		return nil
	}, indices)
	if err != nil {
		return nil, err
	}

	return defs, nil
}

// loadDefinitionFile decodes a single definition file.
func loadDefinitionFile(path string,
	params *chaincfg.Params) (*color.Definition, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	def, err := color.DecodeDefinitionJSON(f, params)
	if err != nil {
		return nil, fmt.Errorf("unable to load definition %v: %w",
			filepath.Base(path), err)
	}

	clrdLog.Debugf("Loaded definition %v from %v", def, path)

	return def, nil
}
