package decode

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Shopify/sarama"

	"github.com/oceanvis/mvq/mvq"
)

// kafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const kafkaMaxMessageSize = 980 * mvq.Kilo

// KafkaConfig describes kafka servers and the topic receiving per-batch
// decode activity records.
type KafkaConfig struct {
	Servers    []string `toml:"servers"`
	Topic      string   `toml:"topic"` // if empty, derived from the session id
	BufferSize int      `toml:"buffer_size"`
}

// activityPublisher sends activity records to a kafka topic.
type activityPublisher struct {
	producer sarama.AsyncProducer
	topic    string
}

// InitKafka starts an async producer for decode activity records.  A config
// without servers leaves the session silent.  Call it before the session
// starts decoding.
func (s *Session) InitKafka(kc KafkaConfig) error {
	if len(kc.Servers) == 0 {
		return nil
	}
	topic := kc.Topic
	if topic == "" {
		topic = "mvqactivity-" + s.id
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = kafkaMaxMessageSize
	if kc.BufferSize > 0 {
		config.ChannelBufferSize = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return err
	}
	go func() {
		for err := range producer.Errors() {
			mvq.Errorf("error on kafka send: %v\n", err)
		}
	}()
	s.publisher = &activityPublisher{producer: producer, topic: topic}
	mvq.Infof("Kafka topic for decode activity: %s\n", topic)
	return nil
}

// publishActivity logs one batch's outcome to the activity topic,
// fire-and-forget.
func (s *Session) publishActivity(t0 time.Time, requests, files int, bytes int64, err error) {
	p := s.publisher
	if p == nil {
		return
	}
	t := time.Since(t0)
	activity := map[string]interface{}{
		"time":       t0.Unix(),
		"duration":   t.Seconds() * 1000.0,
		"session":    s.id,
		"requests":   requests,
		"files":      files,
		"bytes":      bytes,
		"successful": err == nil,
	}
	if err != nil {
		activity["diagnostic"] = err.Error()
	}
	go func() {
		jsonmsg, err := json.Marshal(activity)
		if err != nil {
			mvq.Errorf("unable to marshal activity for kafka logging: %v\n", err)
			return
		}
		timeKey := sarama.StringEncoder(strconv.FormatInt(time.Now().UnixNano(), 10))
		msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(jsonmsg), Key: timeKey}
		p.producer.Input() <- msg
	}()
}

// closePublisher flushes and stops the activity producer if one was started.
func (s *Session) closePublisher() {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.producer.Close(); err != nil {
		mvq.Errorf("Kafka producer had error on close: %v\n", err)
	} else {
		mvq.Infof("Successfully shut down kafka producer.\n")
	}
	s.publisher = nil
}
