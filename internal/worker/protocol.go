package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quant-backtester/internal/model"
)

type RequestType string

const (
	TypeRunBacktest     RequestType = "runBacktest"
	TypeRunOptimization RequestType = "runOptimization"
)

var ErrUnknownRequestType = errors.New("unknown request type")

// Request is the inbound envelope. ID correlates every response.
type Request struct {
	Type    RequestType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

type ResponseType string

const (
	ResponseResult   ResponseType = "result"
	ResponseError    ResponseType = "error"
	ResponseProgress ResponseType = "progress"
)

// Response carries either a result, an error string or a progress update
// for the request with the same ID.
type Response struct {
	ID                string       `json:"id"`
	Type              ResponseType `json:"type"`
	Result            any          `json:"result,omitempty"`
	RunID             string       `json:"runId,omitempty"`
	Error             string       `json:"error,omitempty"`
	Percent           float64      `json:"percent,omitempty"`
	TotalCombinations int          `json:"totalCombinations,omitempty"`
}

// CandleQuery selects stored 1-minute candles when a payload carries none.
type CandleQuery struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type RunPayload struct {
	Candles       []model.Candle       `json:"candles,omitempty"`
	Config        model.StrategyConfig `json:"config"`
	HigherCandles []model.Candle       `json:"higherTimeframeCandles,omitempty"`
	Source        *CandleQuery         `json:"source,omitempty"`
}

func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if req.ID == "" {
		return req, errors.New("decode request: missing id")
	}
	return req, nil
}

func ErrorResponse(id string, err error) Response {
	return Response{ID: id, Type: ResponseError, Error: err.Error()}
}

// ProgressTopic is the subject progress for id is published on. Characters
// that are special in NATS subjects are replaced.
func ProgressTopic(prefix, id string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, id)
	return prefix + "." + clean
}
