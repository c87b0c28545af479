package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"cosmossdk.io/math"
)

// EncodeParams renders v as canonical JSON (map keys sorted, no insignificant whitespace).
// Identical parameter sets always encode to identical bytes.
func EncodeParams(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	// round-trip through a generic value so struct field order does not leak into the encoding
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if generic == nil {
		return nil, nil
	}
	return json.Marshal(generic)
}

// DecodeParams decodes a JSON parameter blob into v, rejecting unknown fields.
func DecodeParams(params []byte, v interface{}) error {
	if len(params) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidParams)
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ToUint converts a big integer to a 256-bit unsigned price.
func ToUint(v *big.Int) (math.Uint, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return math.ZeroUint(), fmt.Errorf("%w: %v", ErrPriceOutOfRange, v)
	}
	return math.NewUintFromBigInt(v), nil
}

// ScaleDecimals converts value from one fixed-point scale to another, truncating when scaling down.
func ScaleDecimals(value *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(value)
	switch {
	case to > from:
		out.Mul(out, pow10(to-from))
	case from > to:
		out.Quo(out, pow10(from-to))
	}
	return out
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
