package color

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// networks are the chains a definition can be loaded for, by name.
var networks = map[string]*chaincfg.Params{
	chaincfg.MainNetParams.Name:       &chaincfg.MainNetParams,
	chaincfg.TestNet3Params.Name:      &chaincfg.TestNet3Params,
	chaincfg.RegressionNetParams.Name: &chaincfg.RegressionNetParams,
	chaincfg.SimNetParams.Name:        &chaincfg.SimNetParams,
	chaincfg.SigNetParams.Name:        &chaincfg.SigNetParams,
}

// NetworkParams returns the chain parameters of the named network. The empty
// name maps to nil, which is used for definitions not bound to a network.
func NetworkParams(name string) (*chaincfg.Params, error) {
	if name == "" {
		return nil, nil
	}

	params, ok := networks[name]
	if !ok {
		return nil, fmt.Errorf("unknown network: %v", name)
	}

	return params, nil
}

// NetworkName returns the name of the network the params belong to, or the
// empty string for nil.
func NetworkName(params *chaincfg.Params) string {
	if params == nil {
		return ""
	}

	return params.Name
}
