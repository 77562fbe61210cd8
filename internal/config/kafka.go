package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every record shipped to Kafka.
const ServiceName = "TBASourceMatcher"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink is a zapcore.WriteSyncer that publishes each encoded log entry
// as one Kafka message.
type KafkaSink struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaSink creates an asynchronous sink writing to topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			Async:        true,
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
	}
}

// Write publishes p. The buffer is copied because zap reuses it.
func (s *KafkaSink) Write(p []byte) (int, error) {
	msg := make([]byte, len(p))
	copy(msg, p)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.w.WriteMessages(ctx, kafka.Message{Value: msg}); err != nil {
		return 0, eris.Wrap(err, "config: kafka write")
	}
	return len(p), nil
}

// Sync is a no-op; the writer flushes on Close.
func (s *KafkaSink) Sync() error { return nil }

// Close flushes pending messages and closes the writer.
func (s *KafkaSink) Close() error {
	if err := s.w.Close(); err != nil {
		return eris.Wrap(err, "config: kafka close")
	}
	return nil
}

// NewKafkaCore builds a JSON core whose record layout matches the log
// collector schema.
func NewKafkaCore(ws zapcore.WriteSyncer, level zapcore.LevelEnabler) zapcore.Core {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		NameKey:        "class",
		CallerKey:      "caller",
		MessageKey:     "LogMessage",
		StacktraceKey:  "Exception",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	host, _ := os.Hostname()
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level).With([]zap.Field{
		zap.String("service", ServiceName),
		zap.String("exportable", "true"),
		zap.Int("pid", os.Getpid()),
		zap.String("serverName", host),
	})
}

var (
	sinkMu sync.Mutex
	sink   *KafkaSink
)

func setSink(s *KafkaSink) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = s
}

// CloseLogger syncs the global logger and closes the Kafka sink, if any.
func CloseLogger() {
	_ = zap.L().Sync()

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink != nil {
		if err := sink.Close(); err != nil {
			zap.L().Warn("close kafka log sink", zap.Error(err))
		}
		sink = nil
	}
}
