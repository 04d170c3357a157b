package processor

import (
	"testing"

	"quant-backtester/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minuteSeries(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i%7) - float64(i%3)
		out[i] = model.Candle{
			Time:    int64(i) * model.MinuteMs,
			Open:    base,
			High:    base + 1 + float64(i%5),
			Low:     base - 1 - float64(i%4),
			Close:   base + 0.5,
			Volume:  float64(i + 1),
			IsFinal: true,
		}
	}
	return out
}

func TestAggregate_EvenlyDivisible(t *testing.T) {
	series := minuteSeries(60)

	out := Aggregate(series, 15*model.MinuteMs)
	require.Len(t, out, 4)

	for b, c := range out {
		members := series[b*15 : (b+1)*15]
		high, low, vol := members[0].High, members[0].Low, 0.0
		for _, m := range members {
			high = max(high, m.High)
			low = min(low, m.Low)
			vol += m.Volume
		}
		assert.Equal(t, int64(b)*15*model.MinuteMs, c.Time)
		assert.Equal(t, members[0].Open, c.Open)
		assert.Equal(t, members[14].Close, c.Close)
		assert.Equal(t, high, c.High)
		assert.Equal(t, low, c.Low)
		assert.InDelta(t, vol, c.Volume, 1e-9)
		assert.True(t, c.IsFinal)
	}
}

func TestAggregate_PartialTrailingBucket(t *testing.T) {
	series := minuteSeries(37)
	series[36].IsFinal = false

	out := Aggregate(series, 15*model.MinuteMs)
	require.Len(t, out, 3)
	assert.Equal(t, series[36].Close, out[2].Close)
	assert.Equal(t, series[30].Open, out[2].Open)
	assert.True(t, out[1].IsFinal)
	assert.False(t, out[2].IsFinal)
}

func TestAggregate_CompleteTrailingBucketIsFinal(t *testing.T) {
	series := minuteSeries(30)
	series[29].IsFinal = false

	out := Aggregate(series, 15*model.MinuteMs)
	require.Len(t, out, 2)
	assert.True(t, out[1].IsFinal)

	series = minuteSeries(29)
	series[28].IsFinal = false
	out = Aggregate(series, 15*model.MinuteMs)
	require.Len(t, out, 2)
	assert.False(t, out[1].IsFinal)
}

func TestAggregate_NegativeTimesFloor(t *testing.T) {
	series := minuteSeries(6)
	for i := range series {
		series[i].Time = int64(i-3) * model.MinuteMs
	}

	out := Aggregate(series, 5*model.MinuteMs)
	require.Len(t, out, 2)
	assert.Equal(t, -5*model.MinuteMs, out[0].Time)
	assert.Equal(t, series[0].Open, out[0].Open)
	assert.Equal(t, series[2].Close, out[0].Close)
	assert.Equal(t, int64(0), out[1].Time)
	assert.Equal(t, series[3].Open, out[1].Open)
}

func TestAggregate_Identity(t *testing.T) {
	series := minuteSeries(10)
	assert.Equal(t, series, Aggregate(series, model.MinuteMs))
	assert.Equal(t, series, Aggregate(series, 30_000))
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, 15*model.MinuteMs))
}

func TestAggregate_Idempotent(t *testing.T) {
	hourly := Aggregate(minuteSeries(240), 60*model.MinuteMs)
	again := Aggregate(hourly, 60*model.MinuteMs)
	assert.Equal(t, hourly, again)
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1m", model.MinuteMs},
		{"15m", 15 * model.MinuteMs},
		{"4h", 240 * model.MinuteMs},
		{"1D", 1440 * model.MinuteMs},
		{"1w", 7 * 1440 * model.MinuteMs},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeframe(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	for _, bad := range []string{"", "m", "0m", "15x", "abc"} {
		_, err := ParseTimeframe(bad)
		assert.ErrorIs(t, err, ErrUnknownTimeframe, bad)
	}
}
