package indicator

import (
	"math"
	"testing"

	"quant-backtester/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	out := EMA([]float64{2, 4, 6, 8}, 3)
	assert.InDelta(t, 4.0, out[2], 1e-9)
	// k = 0.5
	assert.InDelta(t, 6.0, out[3], 1e-9)

	short := EMA([]float64{1, 2}, 3)
	_, ok := Last(short)
	assert.False(t, ok)
}

func TestRSI_Bounds(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(i)
	}
	v, ok := Last(RSI(up, 14))
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	flat := make([]float64, 30)
	v, ok = Last(RSI(flat, 14))
	require.True(t, ok)
	assert.Equal(t, 50.0, v)
}

func TestATR(t *testing.T) {
	candles := make([]model.Candle, 20)
	for i := range candles {
		candles[i] = model.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	atr := ATR(candles, 14)
	v, ok := Last(atr)
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)
	_, ok = At(atr, 5)
	assert.False(t, ok)
}

func TestHighestLowest(t *testing.T) {
	candles := []model.Candle{
		{High: 5, Low: 1}, {High: 9, Low: 3}, {High: 7, Low: 0.5}, {High: 6, Low: 2},
	}
	h, ok := Highest(candles, 3, 3)
	require.True(t, ok)
	assert.Equal(t, 9.0, h)
	l, ok := Lowest(candles, 3, 2)
	require.True(t, ok)
	assert.Equal(t, 0.5, l)
	_, ok = Highest(candles, 3, 10)
	assert.False(t, ok)
}

func TestFractalPivots(t *testing.T) {
	highs := []float64{10, 11, 14, 12, 11, 10, 9, 10, 11, 12}
	lows := []float64{9, 10, 13, 11, 10, 9, 7, 9, 10, 11}
	candles := make([]model.Candle, len(highs))
	for i := range highs {
		candles[i] = model.Candle{High: highs[i], Low: lows[i]}
	}

	pivots := FractalPivots(candles, 2, 2)
	require.Len(t, pivots, 2)
	assert.Equal(t, Pivot{Index: 2, Price: 14, High: true}, pivots[0])
	assert.Equal(t, Pivot{Index: 6, Price: 7}, pivots[1])

	r, ok := NearestResistance(pivots, 12)
	require.True(t, ok)
	assert.Equal(t, 14.0, r)
	_, ok = NearestResistance(pivots, 15)
	assert.False(t, ok)
	s, ok := NearestSupport(pivots, 12)
	require.True(t, ok)
	assert.Equal(t, 7.0, s)
}
