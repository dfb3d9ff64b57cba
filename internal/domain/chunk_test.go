package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptrFloat(f float64) *float64 { return &f }

func TestChunkSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		distance *float64
		wantSim  float64
		wantOK   bool
	}{
		{"no distance", nil, 0, false},
		{"close", ptrFloat(0.2), 0.8, true},
		{"exact", ptrFloat(0), 1, true},
		{"negative distance clamps to one", ptrFloat(-0.5), 1, true},
		{"far distance clamps to zero", ptrFloat(1.7), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, ok := Chunk{Distance: tt.distance}.Similarity()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantSim, sim, 1e-9)
		})
	}
}

func TestChunkIDs(t *testing.T) {
	chunks := []Chunk{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ChunkIDs(chunks))
	assert.Empty(t, ChunkIDs(nil))
}

func TestAccessContextHasRoles(t *testing.T) {
	assert.False(t, AccessContext{}.HasRoles())
	assert.False(t, AccessContext{RoleNames: []string{""}}.HasRoles())
	assert.True(t, AccessContext{RoleNames: []string{"", "teller"}}.HasRoles())
}
