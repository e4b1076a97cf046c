package test

import (
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

// RunUnknownOddTypeTest is a generic test that can be used to test the behavior
// of a decoding function that carries a TLV extension area when an unknown type
// is encountered. The encode closure must serialize the item with the given raw
// record appended to its TLV area. An unknown even type must make decode fail
// with unknownTypeErr, an unknown odd type must be kept and handed to verify.
func RunUnknownOddTypeTest[T any](t *testing.T, knownItem T,
	unknownTypeErr error, encode func(T, []byte) ([]byte, error),
	decode func([]byte) (T, error), verify func(T, tlv.TypeMap)) {

	unknownTypeValue := []byte("I could be anything, really")
	unknownEvenType := append([]byte{
		byte(40),                    // Type 40 is unknown.
		byte(len(unknownTypeValue)), // Length of the value.
	}, unknownTypeValue...)

	encoded, err := encode(knownItem, unknownEvenType)
	require.NoError(t, err)

	// An unknown even type must provoke an error.
	_, err = decode(encoded)
	require.ErrorIs(t, err, unknownTypeErr)

	// An unknown _odd_ type on the other hand should be allowed.
	unknownOddType := append([]byte{
		byte(39),                    // Type 39 is unknown.
		byte(len(unknownTypeValue)), // Length of the value.
	}, unknownTypeValue...)

	encoded, err = encode(knownItem, unknownOddType)
	require.NoError(t, err)

	parsedItem, err := decode(encoded)
	require.NoError(t, err)

	expectedUnknownTypes := tlv.TypeMap{
		39: unknownTypeValue,
	}
	verify(parsedItem, expectedUnknownTypes)
}
