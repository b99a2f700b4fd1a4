package morton

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	coords := [][3]uint32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{31, 31, 31},
		{63, 17, 200},
		{1023, 1023, 1023},
	}
	for _, c := range coords {
		idx := Encode(c[0], c[1], c[2])
		x, y, z := Decode(idx)
		assert.Equal(t, c[0], x)
		assert.Equal(t, c[1], y)
		assert.Equal(t, c[2], z)
	}
}

func TestEncodeIsInjective(t *testing.T) {
	seen := make(map[uint32][3]uint32)
	const n = 32
	for x := uint32(0); x < n; x++ {
		for y := uint32(0); y < n; y++ {
			for z := uint32(0); z < n; z++ {
				idx := Encode(x, y, z)
				if prev, ok := seen[idx]; ok {
					t.Fatalf("collision: %v and %v both map to %d", prev, [3]uint32{x, y, z}, idx)
				}
				seen[idx] = [3]uint32{x, y, z}
			}
		}
	}
}

func TestEncodeOutOfRangePanics(t *testing.T) {
	require.Panics(t, func() { Encode(MaxCoord, 0, 0) })
	require.Panics(t, func() { Encode(0, MaxCoord, 0) })
	require.Panics(t, func() { Encode(0, 0, MaxCoord) })
}

func TestLocalityNeighborsAreClose(t *testing.T) {
	// Adjacent coordinates should not be arbitrarily far apart in index space;
	// this is the entire point of using a Z-order curve for chunk storage.
	base := Encode(16, 16, 16)
	neighbor := Encode(17, 16, 16)
	diff := int64(neighbor) - int64(base)
	assert.Less(t, diff, int64(64))
}
