package report

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"hftcore/internal/schema"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/logs"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReporter writes JSON reports to a Kafka topic keyed by order ID.
type KafkaReporter struct {
	w       messageWriter
	timeout time.Duration
	failed  atomic.Uint64
}

// NewKafkaReporter creates an async writer on topic.
func NewKafkaReporter(brokers []string, topic string) *KafkaReporter {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	})
	return &KafkaReporter{w: w, timeout: DefaultPublishTimeout}
}

func (r *KafkaReporter) OnExecutionReport(orderID uint64, fillPrice, fillQty float64) {
	r.OnReport(schema.ExecutionReport{OrderID: orderID, FillPrice: fillPrice, FillQty: fillQty})
}

func (r *KafkaReporter) OnReport(rep schema.ExecutionReport) {
	now := time.Now()
	b, err := Encode(NewPayload(rep, now))
	if err != nil {
		r.failed.Add(1)
		logs.Errorf("report: encode order %d: %v", rep.OrderID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	err = r.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(rep.OrderID, 10)),
		Value: b,
		Time:  now,
	})
	if err != nil {
		r.failed.Add(1)
		logs.Warnf("report: kafka order %d: %v", rep.OrderID, err)
	}
}

// Failed returns how many reports could not be written.
func (r *KafkaReporter) Failed() uint64 {
	return r.failed.Load()
}

// Close flushes pending messages.
func (r *KafkaReporter) Close() error {
	return r.w.Close()
}
