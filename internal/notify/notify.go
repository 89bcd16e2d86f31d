// Package notify publishes run summaries and live signals to a Kafka bus.
// Without configured brokers it degrades to a no-op, so the pipeline never
// depends on the bus being up.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/quantprep/openprep/internal/artifact"
	"github.com/quantprep/openprep/internal/metrics"
	"github.com/quantprep/openprep/internal/signals"
)

// Config holds bus settings. Empty Brokers disables publishing.
type Config struct {
	Brokers      []string      `yaml:"brokers"`                                 // Default: none (disabled)
	RunTopic     string        `yaml:"run_topic" default:"openprep.runs"`       // Default: openprep.runs
	SignalTopic  string        `yaml:"signal_topic" default:"openprep.signals"` // Default: openprep.signals
	Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gte=1"`   // Default: 3
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"` // Default: 10s
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s" validate:"gt=0"`  // Default: 1s
}

// DefaultConfig returns bus settings with publishing disabled.
func DefaultConfig() Config {
	return Config{
		RunTopic:     "openprep.runs",
		SignalTopic:  "openprep.signals",
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: time.Second,
	}
}

// Enabled reports whether brokers are configured.
func (c Config) Enabled() bool { return len(c.Brokers) > 0 }

// TopEntry is one ranked symbol in a run summary.
type TopEntry struct {
	Symbol   string  `json:"symbol"`
	Score    float64 `json:"score"`
	Tier     string  `json:"tier"`
	Playbook string  `json:"playbook"`
}

// RunSummary is the compact run notification sent on the bus. Consumers who
// need the full artifact fetch it over the HTTP API by run ID.
type RunSummary struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Regime      string     `json:"regime"`
	Top         []TopEntry `json:"top"`
	Universe    int        `json:"universe"`
	Scored      int        `json:"scored"`
	Excluded    int        `json:"excluded"`
	DurationMS  int64      `json:"duration_ms"`
}

const summaryTopN = 5

// SummarizeRun reduces an artifact to its bus notification.
func SummarizeRun(a artifact.RunArtifact) RunSummary {
	s := RunSummary{
		RunID:       a.RunID,
		GeneratedAt: a.GeneratedAt,
		Regime:      a.Regime.Regime.String(),
		Universe:    a.Status.UniverseSize,
		Scored:      a.Status.Scored,
		Excluded:    a.Status.Excluded,
		DurationMS:  a.Status.DurationMS,
	}
	for i, e := range a.Ranked {
		if i >= summaryTopN {
			break
		}
		s.Top = append(s.Top, TopEntry{
			Symbol:   e.Result.Symbol,
			Score:    e.Result.TotalScore,
			Tier:     string(e.Result.Tier),
			Playbook: string(e.Plan.Kind),
		})
	}
	return s
}

// Publisher delivers run and signal events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishRun(ctx context.Context, a artifact.RunArtifact) error
	PublishSignal(ctx context.Context, sig signals.Signal) error
	Close() error
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishRun(context.Context, artifact.RunArtifact) error { return nil }
func (NopPublisher) PublishSignal(context.Context, signals.Signal) error    { return nil }
func (NopPublisher) Close() error                                           { return nil }

// KafkaPublisher writes JSON events to the configured topics, keyed so that
// events for one run or one symbol stay ordered within a partition.
type KafkaPublisher struct {
	writer      *kafka.Writer
	runTopic    string
	signalTopic string
	rec         *metrics.Recorder
	log         zerolog.Logger
}

// New returns a KafkaPublisher, or a NopPublisher when cfg has no brokers.
func New(cfg Config, rec *metrics.Recorder, log zerolog.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		return NopPublisher{}, nil
	}
	if cfg.RunTopic == "" || cfg.SignalTopic == "" {
		return nil, fmt.Errorf("notify topics are required when brokers are set")
	}

	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = d.BatchTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
	}

	return &KafkaPublisher{
		writer:      writer,
		runTopic:    cfg.RunTopic,
		signalTopic: cfg.SignalTopic,
		rec:         rec,
		log:         log.With().Str("component", "notify").Logger(),
	}, nil
}

// PublishRun sends the summary of a completed run, keyed by run ID.
func (p *KafkaPublisher) PublishRun(ctx context.Context, a artifact.RunArtifact) error {
	summary := SummarizeRun(a)
	err := p.publish(ctx, p.runTopic, []byte(summary.RunID), summary)
	if err != nil {
		return fmt.Errorf("failed to publish run %s: %w", summary.RunID, err)
	}
	p.log.Info().Str("run_id", summary.RunID).Str("topic", p.runTopic).Msg("run published")
	return nil
}

// PublishSignal sends one trigger or invalidation event, keyed by symbol.
func (p *KafkaPublisher) PublishSignal(ctx context.Context, sig signals.Signal) error {
	err := p.publish(ctx, p.signalTopic, []byte(sig.Symbol), sig)
	if err != nil {
		return fmt.Errorf("failed to publish signal for %s: %w", sig.Symbol, err)
	}
	return nil
}

func (p *KafkaPublisher) publish(ctx context.Context, topic string, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: data,
		Time:  time.Now(),
	})
	if p.rec != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.rec.RecordPublish(topic, status)
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "none":
		return 0
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
