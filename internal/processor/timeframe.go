package processor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"quant-backtester/internal/model"
)

var ErrUnknownTimeframe = errors.New("unknown timeframe")

var unitMs = map[byte]int64{
	'm': model.MinuteMs,
	'h': 60 * model.MinuteMs,
	'd': 24 * 60 * model.MinuteMs,
	'w': 7 * 24 * 60 * model.MinuteMs,
}

// ParseTimeframe converts strings like "15m", "4h" or "1d" to milliseconds.
func ParseTimeframe(tf string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(tf))
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
	}
	unit, ok := unitMs[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
	}
	return int64(n) * unit, nil
}
