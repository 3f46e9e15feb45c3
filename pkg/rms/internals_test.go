package rms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/rms/pkg/rms"
)

func Test_HeaderCache_Evicts_Slot_Occupant_When_Ids_Collide(t *testing.T) {
	t.Parallel()

	c := rms.NewHeaderCacheForTesting(4)

	c.Insert(1, 48)
	c.Insert(2, 80)

	off, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, rms.BlockOffset(48), off)

	c.Insert(5, 112) // 5 % 4 == 1

	_, ok = c.Get(1)
	assert.False(t, ok, "evicted by id 5")

	off, ok = c.Get(5)
	require.True(t, ok)
	assert.Equal(t, rms.BlockOffset(112), off)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func Test_HeaderCache_Invalidate_Keeps_Other_Id_When_Slot_Holds_It(t *testing.T) {
	t.Parallel()

	c := rms.NewHeaderCacheForTesting(4)

	c.Insert(5, 112)
	c.Invalidate(1) // shares the slot, not cached

	_, ok := c.Get(5)
	assert.True(t, ok)

	c.Invalidate(5)

	_, ok = c.Get(5)
	assert.False(t, ok)

	c.Insert(2, 80)
	c.Insert(3, 96)
	c.Reset()

	_, ok = c.Get(2)
	assert.False(t, ok)

	_, ok = c.Get(3)
	assert.False(t, ok)

	_, ok = c.Get(0)
	assert.False(t, ok, "non-positive ids never hit")
}

func Test_AllocationSize_Rounds_Header_Plus_Payload_Up_To_Unit(t *testing.T) {
	t.Parallel()

	cases := map[int]int32{
		0:   16,
		1:   32,
		15:  32,
		16:  32,
		17:  48,
		100: 128,
	}

	for payload, want := range cases {
		got, ok := rms.AllocationSizeForTesting(payload)
		require.True(t, ok)
		assert.Equal(t, want, got, "payload %d", payload)
	}

	_, ok := rms.AllocationSizeForTesting(-1)
	assert.False(t, ok)

	_, ok = rms.AllocationSizeForTesting(1 << 31)
	assert.False(t, ok)
}

func Test_EscapeName_Round_Trips_When_Name_Has_Special_Bytes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"plain", "with space", "../up", ".", "..", "a%b", "ünï", "tab\there", "UPPER_lower-09"} {
		escaped := rms.EscapeNameForTesting(name)

		assert.NotContains(t, escaped, "/", name)
		assert.NotEqual(t, ".", escaped)
		assert.NotEqual(t, "..", escaped)

		back, ok := rms.UnescapeNameForTesting(escaped)
		require.True(t, ok, "unescape %q", escaped)
		assert.Equal(t, name, back)
	}

	assert.Equal(t, "a%2Fb", rms.EscapeNameForTesting("a/b"))
	assert.Equal(t, "~0065E5~00672C", rms.EscapeNameForTesting("日本"))
	assert.Equal(t, "%FFx", rms.EscapeNameForTesting("\xffx"))

	for _, bad := range []string{"a b", "%", "%4", "%zz", "%41", "a%2f", "%C3%BC", "~0000fc", "~00D800", "~11000", "~"} {
		_, ok := rms.UnescapeNameForTesting(bad)
		assert.False(t, ok, "%q is not an escaped name", bad)
	}
}
