package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name   string
		amount float64
		want   int64
	}{
		{"whole rupees", 499, 49900},
		{"rounds up fractional paise", 19.999, 2000},
		{"zero", 0, 0},
		{"exact paise", 1.01, 101},
		{"half paisa rounds away from zero", 123.455, 12346},
		{"large amount", 100000, 10000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToMinorUnits(tt.amount))
		})
	}
}

func TestToMajorUnits(t *testing.T) {
	assert.Equal(t, 499.0, ToMajorUnits(49900))
	assert.Equal(t, 0.5, ToMajorUnits(50))
	assert.Equal(t, 0.0, ToMajorUnits(0))
}
