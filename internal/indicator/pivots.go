package indicator

import "quant-backtester/internal/model"

// Pivot is a fractal swing point.
type Pivot struct {
	Index int
	Price float64
	High  bool
}

// FractalPivots marks candle i as a swing high when its high is the maximum of
// [i-left, i+right], and a swing low when its low is the minimum.
func FractalPivots(candles []model.Candle, left, right int) []Pivot {
	if len(candles) < left+right+1 {
		return nil
	}
	out := make([]Pivot, 0, len(candles)/5)
	for i := left; i < len(candles)-right; i++ {
		hi, lo := true, true
		for j := i - left; j <= i+right; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				hi = false
			}
			if candles[j].Low <= candles[i].Low {
				lo = false
			}
			if !hi && !lo {
				break
			}
		}
		if hi {
			out = append(out, Pivot{Index: i, Price: candles[i].High, High: true})
		}
		if lo {
			out = append(out, Pivot{Index: i, Price: candles[i].Low})
		}
	}
	return out
}

// NearestResistance returns the lowest swing high strictly above price.
func NearestResistance(pivots []Pivot, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, p := range pivots {
		if p.High && p.Price > price && (!found || p.Price < best) {
			best, found = p.Price, true
		}
	}
	return best, found
}

// NearestSupport returns the highest swing low strictly below price.
func NearestSupport(pivots []Pivot, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, p := range pivots {
		if !p.High && p.Price < price && (!found || p.Price > best) {
			best, found = p.Price, true
		}
	}
	return best, found
}
