package outbox

import (
	"context"
	"strings"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes outbox messages to a single Kafka topic. The outbox
// topic travels as a header; the message id is the key.
type KafkaPublisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokersCSV, topic string) *KafkaPublisher {
	w := &kgo.Writer{
		Addr:         kgo.TCP(SplitCSV(brokersCSV)...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return &KafkaPublisher{writer: w, timeout: 3 * time.Second}
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kafkaMessage(m))
}

func kafkaMessage(m Message) kgo.Message {
	return kgo.Message{
		Key:   []byte(m.ID),
		Value: m.Payload,
		Headers: []kgo.Header{
			{Key: "event", Value: []byte(m.Topic)},
		},
		Time: m.CreatedAt,
	}
}

func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
