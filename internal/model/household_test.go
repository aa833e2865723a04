package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeBucketFor(t *testing.T) {
	tests := []struct {
		n    int
		want SizeBucket
	}{
		{1, Size1},
		{2, Size2},
		{3, Size3},
		{4, Size4},
		{5, Size5Plus},
		{11, Size5Plus},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeBucketFor(tt.n), "count %d", tt.n)
	}
}

func TestHouseholdTypes_Complete(t *testing.T) {
	assert.Len(t, HouseholdTypes, 6)
	seen := make(map[HouseholdType]bool)
	for _, ht := range HouseholdTypes {
		assert.False(t, seen[ht], "duplicate type %s", ht)
		seen[ht] = true
	}
	assert.True(t, seen[ComplexHousehold])
}
