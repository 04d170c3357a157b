package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"quant-backtester/internal/engine"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const queueGroup = "sim-workers"

var errShuttingDown = errors.New("worker shutting down")

// NATSServer serves the request/response boundary over NATS. Requests are
// queue-subscribed so several processes can share the load; progress goes to
// JetStream under progressSubject.<id>.
type NATSServer struct {
	nc              *nats.Conn
	js              nats.JetStreamContext
	dispatcher      *Dispatcher
	pool            *engine.WorkerPool
	requestSubject  string
	progressSubject string
	logger          *zap.Logger
	sub             *nats.Subscription

	mu      sync.RWMutex
	stopped bool
}

func NewNATSServer(nc *nats.Conn, js nats.JetStreamContext, dispatcher *Dispatcher, pool *engine.WorkerPool,
	requestSubject, progressSubject string, logger *zap.Logger) *NATSServer {
	return &NATSServer{
		nc:              nc,
		js:              js,
		dispatcher:      dispatcher,
		pool:            pool,
		requestSubject:  requestSubject,
		progressSubject: progressSubject,
		logger:          logger,
	}
}

func (s *NATSServer) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.requestSubject, queueGroup, func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("serving simulation requests", zap.String("subject", s.requestSubject))
	return nil
}

// Stop drains the subscription and stops handing work to the pool. Once it returns the
// pool can be stopped safely.
func (s *NATSServer) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.logger.Warn("failed to drain request subscription", zap.Error(err))
		}
	}
}

func (s *NATSServer) handle(ctx context.Context, msg *nats.Msg) {
	req, err := DecodeRequest(msg.Data)
	if err != nil {
		s.respond(msg, ErrorResponse(req.ID, err))
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		s.respond(msg, ErrorResponse(req.ID, errShuttingDown))
		return
	}

	reply := func(resp Response) { s.respond(msg, resp) }
	if !s.pool.TrySubmit(s.job(req, reply)) {
		s.respond(msg, ErrorResponse(req.ID, errors.New("worker busy, retry later")))
	}
}

// job answers req through reply exactly once, including when the pool hands
// it a cancelled context during shutdown.
func (s *NATSServer) job(req Request, reply func(Response)) engine.Job {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			reply(ErrorResponse(req.ID, errShuttingDown))
			return
		}
		reply(s.dispatcher.Handle(ctx, req, s.PublishProgress))
	}
}

// PublishProgress sends a progress response to its request's topic.
func (s *NATSServer) PublishProgress(p Response) {
	data, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("failed to marshal progress", zap.Error(err))
		return
	}
	subject := ProgressTopic(s.progressSubject, p.ID)
	if s.js != nil {
		_, err = s.js.Publish(subject, data)
	} else {
		err = s.nc.Publish(subject, data)
	}
	if err != nil {
		s.logger.Warn("failed to publish progress", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *NATSServer) respond(msg *nats.Msg, resp Response) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.String("request_id", resp.ID), zap.Error(err))
		data, _ = json.Marshal(ErrorResponse(resp.ID, err))
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to send response", zap.String("request_id", resp.ID), zap.Error(err))
	}
}
