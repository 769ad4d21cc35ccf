package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkaGo "github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs []kafkaGo.Message
	err  error
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error { return nil }

func TestKafkaPublisherWritesEnvelope(t *testing.T) {
	w := &recordingWriter{}
	p := &kafkaPublisher{writer: w}

	ev := NewEvent("OrderConfirmed", map[string]any{"order_id": 12})
	if err := p.PublishEvent(context.Background(), TopicOrderConfirmed, "12", ev); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TopicOrderConfirmed || string(msg.Key) != "12" {
		t.Fatalf("unexpected message: topic=%s key=%s", msg.Topic, msg.Key)
	}

	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if got.ID == "" || got.Type != "OrderConfirmed" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &kafkaPublisher{writer: &recordingWriter{err: boom}}

	err := p.PublishEvent(context.Background(), TopicOrderCancelled, "1", NewEvent("OrderCancelled", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("got %v", got)
	}
	if len(SplitBrokers("")) != 0 {
		t.Fatalf("empty input should yield no brokers")
	}
}
