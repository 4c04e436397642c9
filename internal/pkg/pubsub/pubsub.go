package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// 每个任务一个频道，订阅方可只关注单个任务或用模式订阅全部
const jobChannelPrefix = "job_events:"

// JobChannel 任务事件频道名
func JobChannel(jobID int64) string {
	return fmt.Sprintf("%s%d", jobChannelPrefix, jobID)
}

// Event 广播的任务事件。投递 at-most-once、尽力而为，
// 消费方通过 status 接口对账，不依赖事件日志。
type Event struct {
	EventID   string          `json:"event_id"`
	JobID     int64           `json:"job_id"`
	TargetID  int64           `json:"target_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布任务事件到该任务的频道
func (p *Publisher) Publish(ctx context.Context, jobID, targetID int64, eventType string, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		raw = data
	}

	event := &Event{
		EventID:   uuid.NewString(),
		JobID:     jobID,
		TargetID:  targetID,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return p.client.Publish(ctx, JobChannel(jobID), data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅单个任务的事件，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, jobID int64, handler func(*Event)) error {
	sub := s.client.Subscribe(ctx, JobChannel(jobID))
	defer sub.Close()

	return s.consume(ctx, sub.Channel(), handler)
}

// SubscribeAll 模式订阅全部任务的事件
func (s *Subscriber) SubscribeAll(ctx context.Context, handler func(*Event)) error {
	sub := s.client.PSubscribe(ctx, jobChannelPrefix+"*")
	defer sub.Close()

	return s.consume(ctx, sub.Channel(), handler)
}

func (s *Subscriber) consume(ctx context.Context, ch <-chan *redis.Message, handler func(*Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
