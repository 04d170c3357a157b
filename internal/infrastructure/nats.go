package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const StreamName = "SIM"

// InitNATS connects and makes sure the progress stream captures
// progressSubject.<request id>.
func InitNATS(url, progressSubject string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name("quant-backtester"))
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	// Progress events are kept briefly so late websocket subscribers can catch up.
	cfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{progressSubject + ".*"},
		MaxMsgs:  100_000,
	}
	if _, err = js.AddStream(cfg); err != nil {
		if _, err = js.UpdateStream(cfg); err != nil {
			logger.Warn("failed to create or update stream", zap.String("stream", StreamName), zap.Error(err))
		}
	}

	return nc, js, nil
}
