package databus

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Shopify/sarama"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

// DefaultTopic receives wallet session notifications.
const DefaultTopic = "wallet_session_events"

// Event is anything publishable on the bus.
type Event interface {
	Serialize() []byte
	Topic() string
}

// DataBus publishes events to kafka.
type DataBus struct {
	producer sarama.SyncProducer
	topic    string
}

// NewDataBus connects a sync producer to the comma separated brokers in hosts.
func NewDataBus(hosts, topic string) (*DataBus, error) {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(strings.Split(hosts, ","), conf)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka producer")
	}
	log.Info("Kafka producer initialized...")
	return NewDataBusWithProducer(p, topic), nil
}

func NewDataBusWithProducer(p sarama.SyncProducer, topic string) *DataBus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &DataBus{producer: p, topic: topic}
}

func (db *DataBus) PublishRaw(topic string, key string, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(raw),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := db.producer.SendMessage(msg)
	if err != nil {
		return errors.WrapAndReport(err, "produce message")
	}
	log.Debugf("produce message success-partition: %d, offset: %d", partition, offset)
	return nil
}

func (db *DataBus) Publish(e Event) error {
	return db.PublishRaw(e.Topic(), "", e.Serialize())
}

// Notify publishes n keyed by its session topic, so one session stays on one partition.
func (db *DataBus) Notify(_ context.Context, n session.Notification) error {
	e := sessionEvent{topic: db.topic, n: n}
	return db.PublishRaw(e.Topic(), n.Topic, e.Serialize())
}

func (db *DataBus) Close() error {
	return errors.Wrap(db.producer.Close(), "close kafka producer")
}

type sessionEvent struct {
	topic string
	n     session.Notification
}

func (e sessionEvent) Topic() string { return e.topic }

func (e sessionEvent) Serialize() []byte {
	bytes, err := json.Marshal(e.n)
	if err != nil {
		log.Error(errors.WrapAndReport(err, "marshal session notification"))
		return nil
	}
	return bytes
}
