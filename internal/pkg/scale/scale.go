// Package scale converts raw magnitudes into human sized values with a
// metric prefix, e.g. 1_500_000 becomes "1.5 M".
package scale

import (
	"math"
	"math/big"
	"strconv"
)

// factor between two consecutive prefixes.
const factor = 1000

// prefixes in ascending order. The empty prefix covers values below 1000,
// which are returned untouched.
var prefixes = []string{"", "K", "M", "G", "T", "P", "E"}

// weiPerGwei is 10^9.
var weiPerGwei = big.NewFloat(1e9)

// Scaled is a magnitude expressed relative to Prefix.
type Scaled struct {
	Value  float64
	Prefix string
}

// String renders the value rounded to two decimals followed by the prefix,
// if any: "1.5 M", "500", "0.25".
func (s Scaled) String() string {
	value := strconv.FormatFloat(round(s.Value), 'f', -1, 64)
	if s.Prefix == "" {
		return value
	}

	return value + " " + s.Prefix
}

// Scale divides v by 1000 until its rendered value fits below 1000 or the
// largest prefix is reached, so 999.999 becomes "1 K" and not "1000".
// Values below 1000, including fractions and zero, keep the empty prefix.
// Negative values are scaled by magnitude and keep their sign.
func Scale(v float64) Scaled {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Scaled{Value: v}
	}

	i := 0
	for math.Abs(round(v)) >= factor && i < len(prefixes)-1 {
		v /= factor
		i++
	}

	return Scaled{Value: v, Prefix: prefixes[i]}
}

// round keeps two decimals, the precision String renders.
func round(v float64) float64 {
	return math.Round(v*100) / 100
}

// WeiToGwei converts an amount in wei to gwei. A nil amount is zero.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerGwei).Float64()
	return gwei
}
