package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexwatch/histview/pkg/models"
)

func validRow(overrides map[string]string) models.RawRow {
	row := models.RawRow{
		models.ColRatingKey:        "101",
		models.ColUsername:         "alice",
		models.ColMediaType:        "episode",
		models.ColTitle:            "Pilot",
		models.ColParentTitle:      "Season 1",
		models.ColGrandparentTitle: "Severance",
		models.ColStarted:          "1700000000",
		models.ColStopped:          "1700002400",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func TestNormalizeEmptyInput(t *testing.T) {
	events, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = Normalize([]models.RawRow{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNormalizeMissingColumns(t *testing.T) {
	rows := []models.RawRow{
		{
			models.ColUsername:  "alice",
			models.ColMediaType: "movie",
		},
	}

	_, err := Normalize(rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), models.ColStarted)
}

func TestNormalizeColumnPresentInAnyRowSuffices(t *testing.T) {
	// A column only needs to exist somewhere in the input; rows that
	// lack it individually degrade instead of failing the run.
	partial := models.RawRow{models.ColUsername: "bob"}
	rows := []models.RawRow{validRow(nil), partial}

	events, err := Normalize(rows)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "bob", events[1].Username)
	assert.False(t, events[1].HasStart())
	assert.False(t, events[1].HasDuration)
}

func TestNormalizeRow(t *testing.T) {
	events, err := Normalize([]models.RawRow{validRow(nil)})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "101", e.RatingKey)
	assert.Equal(t, "alice", e.Username)
	assert.Equal(t, "episode", e.MediaType)
	assert.Equal(t, "Severance", e.GrandparentTitle)

	// 1700000000 = 2023-11-14 22:13:20 UTC, a Tuesday.
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), e.StartedAt)
	assert.True(t, e.HasDuration)
	assert.InDelta(t, 40.0, e.DurationMinutes, 1e-9)
	assert.Equal(t, 22, e.HourOfDay)
	assert.Equal(t, "Tuesday", e.Weekday)
}

func TestNormalizeTrimsWhitespace(t *testing.T) {
	events, err := Normalize([]models.RawRow{validRow(map[string]string{
		models.ColUsername: "  alice  ",
		models.ColStarted:  " 1700000000 ",
	})})
	require.NoError(t, err)
	assert.Equal(t, "alice", events[0].Username)
	assert.True(t, events[0].HasStart())
}

func TestNormalizeMalformedTimestamps(t *testing.T) {
	tests := []struct {
		name      string
		started   string
		stopped   string
		wantStart bool
		wantStop  bool
		wantDur   bool
	}{
		{"both blank", "", "", false, false, false},
		{"garbage start", "not-a-number", "1700002400", false, true, false},
		{"garbage stop", "1700000000", "oops", true, false, false},
		{"fractional seconds", "1700000000.5", "1700000060.5", true, true, true},
		{"epoch zero is a valid instant", "0", "60", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Normalize([]models.RawRow{validRow(map[string]string{
				models.ColStarted: tt.started,
				models.ColStopped: tt.stopped,
			})})
			require.NoError(t, err)
			e := events[0]
			assert.Equal(t, tt.wantStart, e.HasStart())
			assert.Equal(t, tt.wantStop, e.HasStop())
			assert.Equal(t, tt.wantDur, e.HasDuration)
		})
	}
}

func TestNormalizeFractionalDuration(t *testing.T) {
	events, err := Normalize([]models.RawRow{validRow(map[string]string{
		models.ColStarted: "1700000000",
		models.ColStopped: "1700000090",
	})})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, events[0].DurationMinutes, 1e-9)
}

func TestNormalizePreservesInputOrder(t *testing.T) {
	rows := []models.RawRow{
		validRow(map[string]string{models.ColUsername: "alice"}),
		validRow(map[string]string{models.ColUsername: "bob"}),
		validRow(map[string]string{models.ColUsername: "carol"}),
	}

	events, err := Normalize(rows)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "alice", events[0].Username)
	assert.Equal(t, "bob", events[1].Username)
	assert.Equal(t, "carol", events[2].Username)
}

func TestCountMalformed(t *testing.T) {
	rows := []models.RawRow{
		validRow(nil),
		validRow(map[string]string{models.ColStarted: "bad"}),
		validRow(map[string]string{models.ColStopped: ""}),
	}

	events, err := Normalize(rows)
	require.NoError(t, err)
	assert.Equal(t, 2, CountMalformed(events))
}
