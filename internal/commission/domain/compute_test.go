package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		base int64
		rate int64
		want int64
	}{
		{name: "ten percent", base: 10000, rate: 10, want: 1000},
		{name: "zero rate", base: 10000, rate: 0, want: 0},
		{name: "zero base", base: 0, rate: 25, want: 0},
		{name: "full rate", base: 777, rate: 100, want: 777},
		{name: "rounds half up", base: 50, rate: 25, want: 13},
		{name: "rounds down below half", base: 49, rate: 25, want: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compute(tt.base, tt.rate))
		})
	}
}
