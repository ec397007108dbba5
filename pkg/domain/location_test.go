package domain

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestObfuscateStaysWithinRadius(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	exact := Coordinates{Lat: 45.8150, Lng: 15.9819}
	moved := 0
	for i := 0; i < 5000; i++ {
		got := Obfuscate(exact, rng)
		if math.Abs(got.Lat-exact.Lat) > ObfuscationRadius || math.Abs(got.Lng-exact.Lng) > ObfuscationRadius {
			t.Fatalf("iteration %d: %+v outside radius of %+v", i, got, exact)
		}
		if got != exact {
			moved++
		}
	}
	if moved == 0 {
		t.Fatalf("obfuscation never moved the coordinates")
	}
}

func TestShiftClampsToRadius(t *testing.T) {
	got := shift(10, ObfuscationRadius*2)
	if d := got - 10; d <= 0 || d > ObfuscationRadius {
		t.Fatalf("shift overshoot not clamped: delta %v", d)
	}
	got = shift(10, -ObfuscationRadius*2)
	if d := 10 - got; d <= 0 || d > ObfuscationRadius {
		t.Fatalf("negative shift overshoot not clamped: delta %v", d)
	}
}
