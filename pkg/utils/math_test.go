package utils

import (
	"math"
	"testing"
)

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		step  float64
		want  float64
	}{
		{name: "round down to 0.001", value: 0.123456, step: 0.001, want: 0.123},
		{name: "round down to 0.01", value: 1.999, step: 0.01, want: 1.99},
		{name: "exact multiple", value: 100.5, step: 0.5, want: 100.5},
		{name: "zero step returns value", value: 1.2345, step: 0, want: 1.2345},
		{name: "tiny step keeps precision", value: 0.0001234, step: 0.0000001, want: 0.0001234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToStep(tt.value, tt.step)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RoundToStep(%v, %v) = %v, want %v", tt.value, tt.step, got, tt.want)
			}
		})
	}
}

func TestRoundToPrecision(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		want      float64
	}{
		{name: "two decimals", value: 1.23999, precision: 2, want: 1.23},
		{name: "zero decimals", value: 45.9, precision: 0, want: 45},
		{name: "negative precision clamps to 0", value: 45.9, precision: -1, want: 45},
		{name: "already exact", value: 0.001, precision: 3, want: 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToPrecision(tt.value, tt.precision)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RoundToPrecision(%v, %d) = %v, want %v", tt.value, tt.precision, got, tt.want)
			}
		})
	}
}

func TestGridSteps(t *testing.T) {
	tests := []struct {
		name      string
		reference float64
		price     float64
		spacing   float64
		want      int
	}{
		{name: "no movement", reference: 100, price: 100, spacing: 50, want: 0},
		{name: "one step up", reference: 100, price: 155, spacing: 50, want: 1},
		{name: "two steps down", reference: 1000, price: 899, spacing: 50, want: -2},
		{name: "less than a step", reference: 100, price: 149, spacing: 50, want: 0},
		{name: "zero spacing", reference: 100, price: 200, spacing: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GridSteps(tt.reference, tt.price, tt.spacing); got != tt.want {
				t.Errorf("GridSteps(%v, %v, %v) = %d, want %d", tt.reference, tt.price, tt.spacing, got, tt.want)
			}
		})
	}
}

func TestClampQuantity(t *testing.T) {
	tests := []struct {
		name    string
		qty     float64
		current float64
		maxOpen float64
		want    float64
	}{
		{name: "within limit", qty: 10, current: 50, maxOpen: 100, want: 10},
		{name: "trimmed to limit", qty: 60, current: 50, maxOpen: 100, want: 50},
		{name: "already at limit", qty: 10, current: 100, maxOpen: 100, want: 0},
		{name: "no limit", qty: 10, current: 1000, maxOpen: 0, want: 10},
		{name: "non-positive qty", qty: 0, current: 0, maxOpen: 100, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampQuantity(tt.qty, tt.current, tt.maxOpen); got != tt.want {
				t.Errorf("ClampQuantity(%v, %v, %v) = %v, want %v", tt.qty, tt.current, tt.maxOpen, got, tt.want)
			}
		})
	}
}
