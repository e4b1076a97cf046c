package color

const (
	// DustThreshold is the output value below which a colored output is
	// padded. It matches the relay dust limit the protocol was defined
	// against and is part of the protocol: changing it changes how existing
	// outputs decode.
	DustThreshold uint64 = 5460

	// paddingFlag is the most significant bit of an output value. When set,
	// the value carries a padded quantity.
	paddingFlag uint64 = 1 << 63
)

// PadQuantity embeds a quantity into an output value. Quantities at or above
// the dust threshold are used as is. Smaller quantities get the most
// significant bit set and the threshold added, so the resulting value never
// falls below the threshold. A padded value only decodes back to its quantity
// for thresholds up to 2^62; larger thresholds overflow the padded value.
func PadQuantity(quantity, dustThreshold uint64) uint64 {
	if quantity < dustThreshold {
		return (paddingFlag | quantity) + dustThreshold
	}

	return quantity
}

// UnpadValue recovers the quantity embedded in an output value by PadQuantity.
func UnpadValue(value, dustThreshold uint64) uint64 {
	if value&paddingFlag != 0 {
		return (value - dustThreshold) &^ paddingFlag
	}

	return value
}

// IsPadded returns true if the value carries the padding flag.
func IsPadded(value uint64) bool {
	return value&paddingFlag != 0
}

// ValueToQuantity reinterprets the signed value field of a wire output as the
// unsigned value the quantity codec works on.
func ValueToQuantity(value int64) uint64 {
	return uint64(value)
}

// QuantityToValue reinterprets a codec value as the signed value field of a
// wire output.
func QuantityToValue(value uint64) int64 {
	return int64(value)
}

// OutputQuantity decodes the quantity a wire output value carries at the
// protocol dust threshold.
func OutputQuantity(value int64) uint64 {
	return UnpadValue(ValueToQuantity(value), DustThreshold)
}
