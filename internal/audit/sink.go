package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ZapSink writes events as structured log lines.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink builds a log-backed sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// Emit logs the event. It cannot fail.
func (s *ZapSink) Emit(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type)),
		zap.Time("occurred_at", event.OccurredAt),
		zap.String("correlation_id", event.Context.CorrelationID),
	}
	if event.Context.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.Context.SessionID))
	}
	if event.Context.CausationID != "" {
		fields = append(fields, zap.String("causation_id", event.Context.CausationID))
	}
	if event.Context.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", event.Context.UserID))
	}
	if event.Context.OrgID != 0 {
		fields = append(fields, zap.Int64("organization_id", event.Context.OrgID))
	}
	if event.Context.IPHash != "" {
		fields = append(fields, zap.String("ip_hash", event.Context.IPHash))
	}
	if event.Context.UserAgentHash != "" {
		fields = append(fields, zap.String("user_agent_hash", event.Context.UserAgentHash))
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.String("payload_"+k, v))
	}
	s.logger.Info("audit", fields...)
	return nil
}

// RedisStreamSink appends events to a Redis stream, the external append-only
// event store consumed by downstream forensics tooling.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
}

// NewRedisStreamSink builds a stream-backed sink.
func NewRedisStreamSink(client redis.UniversalClient, stream string) *RedisStreamSink {
	if stream == "" {
		stream = "auth:audit"
	}
	return &RedisStreamSink{client: client, stream: stream}
}

// Emit XADDs the serialized event.
func (s *RedisStreamSink) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_type": string(event.Type),
			"data":       payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
