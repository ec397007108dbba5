package domain

import (
	"math"
	"math/rand/v2"
)

// ObfuscationRadius bounds the per-axis offset, in degrees, applied to exact
// coordinates when a listing does not publish its exact location (~500m).
const ObfuscationRadius = 0.0045

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Obfuscate returns exact shifted by an independent uniform offset in
// [-ObfuscationRadius, +ObfuscationRadius] on each axis.
func Obfuscate(exact Coordinates, rng *rand.Rand) Coordinates {
	return Coordinates{
		Lat: shift(exact.Lat, offset(rng)),
		Lng: shift(exact.Lng, offset(rng)),
	}
}

// shift adds delta to v, pulling the result back inside the radius when
// float rounding would push it just past the bound.
func shift(v, delta float64) float64 {
	out := v + delta
	if math.Abs(out-v) > ObfuscationRadius {
		return v + math.Copysign(ObfuscationRadius, delta)*(1-1e-9)
	}
	return out
}

func offset(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * ObfuscationRadius
}
