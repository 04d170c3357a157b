// Package indicator implements the technical indicators consumed by agents.
// Every series is aligned to its input; values are NaN until enough data exists.
package indicator

import (
	"math"

	"quant-backtester/internal/model"
)

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final value of a series and whether it is defined.
func Last(series []float64) (float64, bool) {
	return At(series, len(series)-1)
}

// At returns series[i] and whether it is defined.
func At(series []float64, i int) (float64, bool) {
	if i < 0 || i >= len(series) {
		return 0, false
	}
	v := series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SMA over the last p points.
func SMA(x []float64, p int) []float64 {
	out := nanSeries(len(x))
	if p <= 0 {
		return out
	}
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i >= p-1 {
			out[i] = sum / float64(p)
		}
	}
	return out
}

// EMA with smoothing 2/(p+1), seeded with the SMA of the first p points.
func EMA(x []float64, p int) []float64 {
	out := nanSeries(len(x))
	if p <= 0 || len(x) < p {
		return out
	}
	k := 2.0 / float64(p+1)
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

// RSI using Wilder smoothing.
func RSI(x []float64, p int) []float64 {
	out := nanSeries(len(x))
	if p <= 0 || len(x) <= p {
		return out
	}
	var gain, loss float64
	for i := 1; i <= p; i++ {
		ch := x[i] - x[i-1]
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	gain /= float64(p)
	loss /= float64(p)
	out[p] = rsiValue(gain, loss)
	for i := p + 1; i < len(x); i++ {
		ch := x[i] - x[i-1]
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		gain = (gain*float64(p-1) + g) / float64(p)
		loss = (loss*float64(p-1) + l) / float64(p)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

// TrueRange of each candle; the first uses high-low only.
func TrueRange(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR using Wilder smoothing of the true range.
func ATR(candles []model.Candle, p int) []float64 {
	out := nanSeries(len(candles))
	if p <= 0 || len(candles) < p {
		return out
	}
	tr := TrueRange(candles)
	var sum float64
	for i := 0; i < p; i++ {
		sum += tr[i]
	}
	out[p-1] = sum / float64(p)
	for i := p; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(p-1) + tr[i]) / float64(p)
	}
	return out
}

// Highest high over the n candles ending at index end (inclusive).
func Highest(candles []model.Candle, end, n int) (float64, bool) {
	start := end - n + 1
	if n <= 0 || start < 0 || end >= len(candles) {
		return 0, false
	}
	h := candles[start].High
	for i := start + 1; i <= end; i++ {
		h = math.Max(h, candles[i].High)
	}
	return h, true
}

// Lowest low over the n candles ending at index end (inclusive).
func Lowest(candles []model.Candle, end, n int) (float64, bool) {
	start := end - n + 1
	if n <= 0 || start < 0 || end >= len(candles) {
		return 0, false
	}
	l := candles[start].Low
	for i := start + 1; i <= end; i++ {
		l = math.Min(l, candles[i].Low)
	}
	return l, true
}

// AverageVolume over the n candles ending at index end (inclusive).
func AverageVolume(candles []model.Candle, end, n int) (float64, bool) {
	start := end - n + 1
	if n <= 0 || start < 0 || end >= len(candles) {
		return 0, false
	}
	var sum float64
	for i := start; i <= end; i++ {
		sum += candles[i].Volume
	}
	return sum / float64(n), true
}
