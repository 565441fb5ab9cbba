package gtid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sid1 = uuid.MustParse("3e11fa47-71ca-11e1-9e33-c80aa9429562")

func TestGTIDAdd(t *testing.T) {
	tcs := []struct {
		name  string
		adds  []Interval
		want  []Interval
		isErr error
	}{
		{
			name: "touching merge",
			adds: []Interval{{1, 4}, {4, 6}},
			want: []Interval{{1, 6}},
		},
		{
			name: "fill the gap",
			adds: []Interval{{1, 3}, {5, 7}, {3, 5}},
			want: []Interval{{1, 7}},
		},
		{
			name: "kept apart",
			adds: []Interval{{8, 11}, {1, 4}},
			want: []Interval{{1, 4}, {8, 11}},
		},
		{
			name: "empty interval is a no-op",
			adds: []Interval{{1, 4}, {9, 9}},
			want: []Interval{{1, 4}},
		},
		{
			name:  "overlap",
			adds:  []Interval{{1, 4}, {3, 5}},
			isErr: ErrOverlappingInterval,
		},
		{
			name:  "contained",
			adds:  []Interval{{1, 10}, {3, 5}},
			isErr: ErrOverlappingInterval,
		},
		{
			name:  "malformed",
			adds:  []Interval{{5, 4}},
			isErr: ErrMalformedInterval,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			g := &GTID{SID: sid1}
			var err error
			for _, iv := range tc.adds {
				if err = g.Add(iv.Start, iv.End); err != nil {
					break
				}
			}
			if tc.isErr != nil {
				require.ErrorIs(t, err, tc.isErr)
				assert.ErrorIs(t, err, ErrGtidSet)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, g.Intervals)
		})
	}
}

func TestGTIDSubtract(t *testing.T) {
	g, err := New(sid1, Interval{1, 11})
	require.NoError(t, err)

	require.NoError(t, g.Subtract(4, 6))
	assert.Equal(t, []Interval{{1, 4}, {6, 11}}, g.Intervals)

	require.NoError(t, g.Subtract(0, 2))
	assert.Equal(t, []Interval{{2, 4}, {6, 11}}, g.Intervals)

	require.NoError(t, g.Subtract(3, 20))
	assert.Equal(t, []Interval{{2, 3}}, g.Intervals)

	assert.ErrorIs(t, g.Subtract(3, 2), ErrMalformedInterval)
}

func TestGTIDAddSubtractInverse(t *testing.T) {
	base := []Interval{{1, 4}, {8, 11}}
	for _, iv := range []Interval{{4, 8}, {11, 20}, {20, 25}} {
		g, err := New(sid1, base...)
		require.NoError(t, err)

		require.NoError(t, g.Add(iv.Start, iv.End))
		require.NoError(t, g.Subtract(iv.Start, iv.End))
		assert.Equal(t, base, g.Intervals, "interval %v", iv)
	}
}

func TestGTIDText(t *testing.T) {
	g, err := ParseGTID("3E11FA47-71CA-11E1-9E33-C80AA9429562:1-3:8-10:12")
	require.NoError(t, err)
	assert.Equal(t, []Interval{{1, 4}, {8, 11}, {12, 13}}, g.Intervals)
	assert.Equal(t, "3e11fa47-71ca-11e1-9e33-c80aa9429562:1-3:8-10:12", g.String())

	again, err := ParseGTID(g.String())
	require.NoError(t, err)
	assert.Equal(t, g, again)

	for _, bad := range []string{
		"3e11fa47-71ca-11e1-9e33-c80aa9429562",
		"not-a-uuid:1-3",
		"3e11fa47-71ca-11e1-9e33-c80aa9429562:0-3",
		"3e11fa47-71ca-11e1-9e33-c80aa9429562:a",
	} {
		_, err = ParseGTID(bad)
		assert.ErrorIs(t, err, ErrInvalidGTID, bad)
	}

	_, err = ParseGTID("3e11fa47-71ca-11e1-9e33-c80aa9429562:5-3")
	assert.ErrorIs(t, err, ErrMalformedInterval)
}

func TestGTIDContains(t *testing.T) {
	g, err := ParseGTID(sid1.String() + ":1-3:8-10")
	require.NoError(t, err)

	assert.True(t, g.Contains(2))
	assert.True(t, g.Contains(10))
	assert.False(t, g.Contains(5))
	assert.False(t, g.Contains(11))
	assert.True(t, g.ContainsInterval(8, 11))
	assert.False(t, g.ContainsInterval(3, 9))
}

func TestGTIDMerge(t *testing.T) {
	a, _ := ParseGTID(sid1.String() + ":1-5")
	b, _ := ParseGTID(sid1.String() + ":3-9:20")
	require.NoError(t, a.Merge(b))
	assert.Equal(t, sid1.String()+":1-9:20", a.String())

	other, _ := ParseGTID("00000000-0000-0000-0000-000000000001:1")
	assert.ErrorIs(t, a.Merge(other), ErrSIDMismatch)
}
