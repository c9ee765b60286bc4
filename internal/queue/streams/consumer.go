package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Consumer reads job envelopes from a single Redis stream through a
// consumer group. Minutes runs one job stream, so the stream is fixed
// at construction instead of passed per call.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
}

// NewConsumer builds a consumer bound to one stream, group and name.
func NewConsumer(client *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, name: name}
}

// EnsureGroup creates the consumer group if it does not exist. Redis
// reports an existing group as BUSYGROUP, which is fine here.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("xgroup create: %w", err)
}

// Read pulls up to count new messages, blocking up to block when the
// stream is empty. A nil result with nil error means the block timed out.
func (c *Consumer) Read(ctx context.Context, block time.Duration, count int64) ([]Message, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
	}
	if block > 0 {
		args.Block = block
	}
	if count > 0 {
		args.Count = count
	}

	res, err := c.client.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, st := range res {
		out = append(out, c.decodeBatch(ctx, st.Messages)...)
	}
	return out, nil
}

// Claim takes over pending messages another consumer left idle for at
// least minIdle, so a crashed worker's jobs are not stuck forever.
func (c *Consumer) Claim(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	args := &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    "0-0",
	}
	if count > 0 {
		args.Count = count
	}
	msgs, _, err := c.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	return c.decodeBatch(ctx, msgs), nil
}

// Ack acknowledges processing of the provided message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Status reports lag for this consumer's group.
func (c *Consumer) Status(ctx context.Context) (GroupStatus, error) {
	return InspectGroup(ctx, c.client, c.stream, c.group)
}

func (c *Consumer) check() error {
	if c.stream == "" {
		return fmt.Errorf("stream name is required")
	}
	if c.group == "" || c.name == "" {
		return fmt.Errorf("consumer group and name must be configured")
	}
	return nil
}

// decodeBatch unwraps raw entries. Entries without a parseable envelope
// are acked immediately so they cannot wedge the group.
func (c *Consumer) decodeBatch(ctx context.Context, msgs []redis.XMessage) []Message {
	var out []Message
	for _, msg := range msgs {
		env, err := envelopeFrom(msg)
		if err != nil {
			_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
			continue
		}
		out = append(out, Message{ID: msg.ID, Envelope: env})
	}
	return out
}

// envelopeFrom extracts and validates the envelope field of one entry.
// The publisher writes it as a string; []byte covers other clients.
func envelopeFrom(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values["envelope"]
	if !ok {
		return Envelope{}, fmt.Errorf("entry %s has no envelope field", msg.ID)
	}
	switch v := raw.(type) {
	case string:
		return UnmarshalEnvelope([]byte(v))
	case []byte:
		return UnmarshalEnvelope(v)
	default:
		return Envelope{}, fmt.Errorf("entry %s envelope has unexpected type %T", msg.ID, raw)
	}
}
