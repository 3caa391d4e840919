package kafka

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/config"
	"github.com/kanna-karuppasamy/smart-grid-ingest-server/internal/models"

	"github.com/Shopify/sarama"
)

// Event types carried in the Type field of published messages
const (
	EventWindow  = "window"
	EventAnomaly = "anomaly"
)

// windowKey keys window events so they land on one partition in order
const windowKey = "power-window"

// Event is the JSON envelope published for every window and anomaly
type Event struct {
	Type    string            `json:"type"`
	Window  *models.WindowSum `json:"window,omitempty"`
	Anomaly *models.Anomaly   `json:"anomaly,omitempty"`
}

// Producer publishes aggregation events to Kafka
type Producer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	mu       sync.RWMutex
	closed   bool
	dropped  atomic.Uint64
	done     chan struct{}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	// Optimize for throughput
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 500

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, err
	}

	logger.Info("kafka producer started", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return newProducer(producer, cfg.Topic, logger), nil
}

func newProducer(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *Producer {
	p := &Producer{
		producer: producer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(p.done)
		for err := range producer.Errors() {
			p.logger.Error("kafka publish failed", "topic", p.topic, "error", err.Err)
		}
	}()

	return p
}

// PublishWindow publishes a closed aggregation window
func (p *Producer) PublishWindow(w models.WindowSum) {
	p.publish(windowKey, Event{Type: EventWindow, Window: &w})
}

// PublishAnomaly publishes an anomalous reading, keyed by device
func (p *Producer) PublishAnomaly(a models.Anomaly) {
	p.publish(a.DeviceID, Event{Type: EventAnomaly, Anomaly: &a})
}

// Dropped returns the number of events dropped because the producer was
// saturated or closed
func (p *Producer) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Producer) publish(key string, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("encoding kafka event", "type", event.Type, "error", err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case p.producer.Input() <- msg:
	default:
		// Producer is saturated, log and drop the event
		if n := p.dropped.Add(1); n%1000 == 1 {
			p.logger.Warn("kafka producer saturated, dropping events", "dropped", n)
		}
	}
}

// Close flushes buffered events and closes the producer
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.producer.Close()
	<-p.done
	return err
}
