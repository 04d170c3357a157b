package processor

import (
	"quant-backtester/internal/model"
)

// Aggregate resamples an ordered base series into buckets of durationMs.
// Durations of one minute or less return the input unchanged.
func Aggregate(candles []model.Candle, durationMs int64) []model.Candle {
	if durationMs <= model.MinuteMs {
		return candles
	}
	if len(candles) == 0 {
		return []model.Candle{}
	}

	out := make([]model.Candle, 0, len(candles)/int(durationMs/model.MinuteMs)+1)
	var acc *model.Candle
	var last model.Candle

	for _, c := range candles {
		bucket := bucketStart(c.Time, durationMs)
		if acc != nil && acc.Time != bucket {
			acc.IsFinal = true
			out = append(out, *acc)
			acc = nil
		}
		if acc == nil {
			acc = &model.Candle{
				Time:   bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
		} else {
			if c.High > acc.High {
				acc.High = c.High
			}
			if c.Low < acc.Low {
				acc.Low = c.Low
			}
			acc.Close = c.Close
			acc.Volume += c.Volume
		}
		last = c
	}

	// A trailing bucket whose last minute has been seen is complete; otherwise
	// it is only as final as that constituent.
	acc.IsFinal = last.Time+model.MinuteMs >= acc.Time+durationMs || last.IsFinal
	return append(out, *acc)
}

// bucketStart floors t to a multiple of d, also for times before the epoch.
func bucketStart(t, d int64) int64 {
	b := t / d * d
	if t < 0 && b != t {
		b -= d
	}
	return b
}

// AggregateTimeframe is Aggregate with a timeframe string.
func AggregateTimeframe(candles []model.Candle, timeframe string) ([]model.Candle, error) {
	d, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	return Aggregate(candles, d), nil
}
