package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatTimestampRoundTrip(t *testing.T) {
	ts, err := ParseTimestamp("2026-06-01 10:00:30")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, "2026-06-01 10:00:30", FormatTimestamp(ts))
}

func TestParseTimestampRejectsMalformed(t *testing.T) {
	_, err := ParseTimestamp("2026-06-01T10:00:30Z")
	assert.Error(t, err)
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		seconds   float64
		precision TimePrecision
		want      string
	}{
		{65, PrecisionSeconds, "1:05"},
		{65.34, PrecisionTenths, "1:05.3"},
		{65.34, PrecisionHundredths, "1:05.34"},
		{59.99, PrecisionTenths, "1:00.0"},
		{-5, PrecisionSeconds, "0:00"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatElapsed(c.seconds, c.precision))
	}
}

func TestFormatTimeBehind(t *testing.T) {
	assert.Equal(t, "", FormatTimeBehind(nil, PrecisionSeconds))
	behind := 12.5
	assert.Equal(t, "+0:12.5", FormatTimeBehind(&behind, PrecisionTenths))
}

func TestPunchSourcePriority(t *testing.T) {
	assert.True(t, SourceUSB.Stronger(SourceROC))
	assert.True(t, SourceSIRAP.Stronger(SourceManual))
	assert.False(t, SourceManual.Stronger(SourceUSB))
	assert.False(t, SourceROC.Stronger(SourceROC))
}

func TestStageRunCountingSeconds(t *testing.T) {
	var run StageRun
	assert.Equal(t, 0.0, run.CountingSeconds())

	elapsed := 30.0
	run.ElapsedSeconds = &elapsed
	run.PenaltySeconds = 5.0
	assert.Equal(t, 35.0, run.CountingSeconds())
}
