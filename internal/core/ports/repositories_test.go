package ports

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovementListParams_Offset(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		pageSize int
		want     int
	}{
		{"first page", 1, 50, 0},
		{"third page", 3, 20, 40},
		{"zero page", 0, 50, 0},
		{"negative page", -4, 50, 0},
		{"no page size", 5, 0, 0},
		{"saturates", 1<<58 + 1, 50, math.MaxInt},
		{"largest page", math.MaxInt, math.MaxInt, math.MaxInt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MovementListParams{Page: tt.page, PageSize: tt.pageSize}
			assert.Equal(t, tt.want, p.Offset())
		})
	}
}
