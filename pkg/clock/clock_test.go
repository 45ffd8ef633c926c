package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocal(t *testing.T) {
	want := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	for _, value := range []string{
		"2024-01-05T14:30",
		"2024-01-05T14:30:00",
		"2024-01-05 14:30",
		" 2024-01-05 14:30:00 ",
	} {
		got, err := ParseLocal(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(got), value)
		assert.Equal(t, time.UTC, got.Location())
	}

	midnight, err := ParseLocal("2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 4, 18, 30, 0, 0, time.UTC), midnight)
}

func TestParseLocalRejects(t *testing.T) {
	for _, value := range []string{"", "   ", "tomorrow", "05/01/2024", "2024-13-01T10:00"} {
		_, err := ParseLocal(value)
		assert.ErrorIs(t, err, ErrInvalidDate, value)
	}
}

func TestDisplay(t *testing.T) {
	at := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "05 Jan 2024, 02:30 PM", Display(at))
	assert.Equal(t, "06 Jan 2024, 12:15 AM", Display(time.Date(2024, 1, 5, 18, 45, 0, 0, time.UTC)))

	ist := ToIST(at)
	assert.Equal(t, 14, ist.Hour())
	assert.Equal(t, 30, ist.Minute())
	assert.Nil(t, ToISTPtr(nil))
	assert.True(t, at.Equal(*ToISTPtr(&at)))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	clk := &Fixed{At: start.In(IST)}
	assert.Equal(t, start, clk.Now())
	assert.Equal(t, time.UTC, clk.Now().Location())

	clk.Advance(2 * time.Hour)
	assert.Equal(t, start.Add(2*time.Hour), clk.Now())

	assert.Equal(t, time.UTC, System().Now().Location())
}
