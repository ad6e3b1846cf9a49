package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
	"github.com/nmsdosti/newquiz.onlin2/go/internal/metrics"
)

type JetStreamConfig struct {
	URL               string
	StreamName        string
	SubjectPrefix     string
	ConsumerPrefix    string // per-process prefix for durable consumer names
	MaxReconnects     int
	ReconnectWait     time.Duration
	MaxAge            time.Duration // How long to keep messages
	Replicas          int
	DuplicateWindow   time.Duration // Nats-Msg-Id dedupe window
	MaxAckPending     int
	AckWait           time.Duration
	MaxDeliver        int
	MaxPublishPending int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:               nats.DefaultURL,
		StreamName:        "QUIZ_EVENTS",
		SubjectPrefix:     "quiz.events",
		ConsumerPrefix:    "quizd-" + uuid.NewString()[:8],
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		MaxAge:            24 * time.Hour,
		Replicas:          1,
		DuplicateWindow:   2 * time.Minute,
		MaxAckPending:     256,
		AckWait:           10 * time.Second,
		MaxDeliver:        5,
		MaxPublishPending: 512,
	}
}

// JetStream is a Broadcaster over a NATS JetStream stream. Envelope ids are
// used as Nats-Msg-Id so the server drops republished duplicates inside the
// dedupe window.
type JetStream struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  JetStreamConfig
	clock   clockwork.Clock
	metrics metrics.Collector

	mu   sync.Mutex
	subs map[*jsSub]struct{}
}

type jsSub struct {
	owner    *JetStream
	consumer string
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func NewJetStream(cfg JetStreamConfig, clock clockwork.Clock, m metrics.Collector) (*JetStream, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	opts := []nats.Option{
		nats.Name("quizd"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, apperrors.NewTransportError("connect to NATS", err)
	}

	collector := metrics.OrNoOp(m)
	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPublishPending),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			collector.RecordBroadcast(msg.Header.Get("Event-Type"), false)
			log.Warn().
				Err(err).
				Str("subject", msg.Subject).
				Str("event_id", msg.Header.Get(jetstream.MsgIDHeader)).
				Msg("async publish to JetStream failed")
		}),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &JetStream{
		nc:      nc,
		js:      js,
		config:  cfg,
		clock:   clock,
		metrics: collector,
		subs:    make(map[*jsSub]struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return b, nil
}

// Conn exposes the NATS connection for health checks.
func (b *JetStream) Conn() *nats.Conn { return b.nc }

func (b *JetStream) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        b.config.StreamName,
		Description: "Live quiz session events",
		Subjects:    []string{fmt.Sprintf("%s.>", b.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    b.config.Replicas,
		Duplicates:  b.config.DuplicateWindow,
	}

	stream, err := b.js.Stream(ctx, b.config.StreamName)
	if err != nil {
		if _, err = b.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("created JetStream stream")
		return nil
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if info.Config.MaxAge != sc.MaxAge || info.Config.Replicas != sc.Replicas || info.Config.Duplicates != sc.Duplicates {
		if _, err = b.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", b.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func (b *JetStream) subject(sessionID uuid.UUID, t events.Type) string {
	return fmt.Sprintf("%s.%s.%s", b.config.SubjectPrefix, sessionID, t)
}

// Publish validates ev and hands it to the async publisher. It returns once
// the message is queued, not when the server acknowledges it.
func (b *JetStream) Publish(_ context.Context, sessionID uuid.UUID, ev events.Event) error {
	env, err := events.NewEnvelope(sessionID, ev, b.clock.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &nats.Msg{
		Subject: b.subject(sessionID, env.Type),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(env.Type)},
			"Session-ID": []string{sessionID.String()},
			"Event-ID":   []string{env.ID.String()},
		},
	}
	if _, err := b.js.PublishMsgAsync(msg,
		jetstream.WithMsgID(env.ID.String()),
		jetstream.WithExpectStream(b.config.StreamName),
	); err != nil {
		b.metrics.RecordBroadcast(string(env.Type), false)
		return apperrors.NewTransportError("publish to JetStream", err)
	}

	b.metrics.RecordBroadcast(string(env.Type), true)
	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", env.ID.String()).
		Msg("queued event for JetStream")
	return nil
}

// Subscribe creates a durable consumer filtered to the session (or to every
// session for AllSessions) that delivers only events published from now on.
func (b *JetStream) Subscribe(sessionID uuid.UUID, h Handler) (Subscription, error) {
	filter := fmt.Sprintf("%s.%s.>", b.config.SubjectPrefix, sessionID)
	name := fmt.Sprintf("%s-%s", b.config.ConsumerPrefix, sessionID)
	if sessionID == AllSessions {
		filter = fmt.Sprintf("%s.>", b.config.SubjectPrefix)
		name = b.config.ConsumerPrefix + "-all"
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := b.js.Stream(ctx, b.config.StreamName)
	if err != nil {
		cancel()
		return nil, apperrors.NewTransportError("get stream", err)
	}
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              name,
		Durable:           name,
		Description:       "quiz session observer",
		FilterSubject:     filter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           b.config.AckWait,
		MaxDeliver:        b.config.MaxDeliver,
		MaxAckPending:     b.config.MaxAckPending,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		cancel()
		return nil, apperrors.NewTransportError("create consumer", err)
	}

	messageCh := make(chan jetstream.Msg, b.config.MaxAckPending)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		cancel()
		return nil, apperrors.NewTransportError("start consumer", err)
	}

	s := &jsSub{owner: b, consumer: name, cancel: cancel, done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(s.done)
		defer consumeCtx.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-messageCh:
				b.handle(ctx, msg, h)
			}
		}
	}()

	log.Info().Str("consumer", name).Str("filter", filter).Msg("subscribed to JetStream events")
	return s, nil
}

func (b *JetStream) handle(ctx context.Context, msg jetstream.Msg, h Handler) {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// Poison message: redelivery cannot fix it.
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed envelope")
		_ = msg.Term()
		return
	}
	h(ctx, env)
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Str("event_id", env.ID.String()).Msg("failed to ACK message")
	}
}

func (s *jsSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	})
	return nil
}

func (b *JetStream) Close() error {
	b.mu.Lock()
	subs := make([]*jsSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}

	if b.nc != nil {
		select {
		case <-b.js.PublishAsyncComplete():
		case <-time.After(5 * time.Second):
			log.Warn().Int("pending", b.js.PublishAsyncPending()).Msg("closing with unacknowledged publishes")
		}
		b.nc.Close()
	}
	return nil
}
