package model

// MinuteMs is the duration of one base candle.
const MinuteMs int64 = 60_000

// Candle is one OHLCV bar. Time is the bucket start in epoch milliseconds.
type Candle struct {
	Time    int64   `json:"time"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"volume"`
	IsFinal bool    `json:"isFinal"`
}

// Bullish reports whether the candle closed at or above its open.
func (c Candle) Bullish() bool {
	return c.Close >= c.Open
}

// Closes extracts the close prices of a series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Direction of an open position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign is +1 for LONG and -1 for SHORT.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Short {
		return Long
	}
	return Short
}

// Action is the directional output of an agent.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Direction maps BUY to LONG and SELL to SHORT. ok is false for HOLD.
func (a Action) Direction() (Direction, bool) {
	switch a {
	case ActionBuy:
		return Long, true
	case ActionSell:
		return Short, true
	default:
		return "", false
	}
}
