package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/config"
	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Message kinds, sent in the "kind" header.
const (
	KindSite        = "site"
	KindCorrelation = "correlation"
	KindCluster     = "cluster"
	KindSource      = "source"
)

// Writer publishes run results to a Kafka topic, one message per result row.
// It implements pipeline.Loader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Load serializes every result row of the report and publishes them in a
// single WriteMessages call. Rows of one source share a partition.
func (w *Writer) Load(ctx context.Context, report domain.RunReport) error {
	msgs, err := buildMessages(report)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d result messages: %w", len(msgs), err)
	}
	w.logger.Debug("results published", "run_id", report.RunID, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// sourceSummary is the per-source status message.
type sourceSummary struct {
	Source       string            `json:"source"`
	Sites        int               `json:"sites"`
	Correlations int               `json:"correlations"`
	Clusters     int               `json:"clusters"`
	SkippedDates []time.Time       `json:"skipped_dates,omitempty"`
	Ranking      domain.Ranking    `json:"ranking"`
	Stats        domain.ParseStats `json:"stats"`
	Error        string            `json:"error,omitempty"`
}

func buildMessages(report domain.RunReport) ([]kafkago.Message, error) {
	var msgs []kafkago.Message
	for _, src := range report.Sources {
		summary := sourceSummary{
			Source:       src.Source,
			Sites:        len(src.Sites),
			Correlations: len(src.Correlations),
			Clusters:     len(src.Clusters),
			SkippedDates: src.SkippedDates,
			Ranking:      src.Ranking,
			Stats:        src.Stats,
			Error:        src.Error,
		}
		msg, err := serializeToMessage(report, src.Source, KindSource, src.Source, summary)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)

		for _, site := range src.Sites {
			msg, err := serializeToMessage(report, src.Source, KindSite, site.SiteID, site)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
		for _, row := range src.Correlations {
			msg, err := serializeToMessage(report, src.Source, KindCorrelation, row.Date.Format(time.DateOnly), row)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
		for _, row := range src.Clusters {
			msg, err := serializeToMessage(report, src.Source, KindCluster, row.Date.Format(time.DateOnly), row)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// serializeToMessage marshals one result row into a Kafka message keyed by
// source so that a source's rows keep their order on one partition.
func serializeToMessage(report domain.RunReport, source, kind, id string, row any) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s %s row %s: %w", source, kind, id, err)
	}
	return kafkago.Message{
		Key:   []byte(source),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(source)},
			{Key: "kind", Value: []byte(kind)},
			{Key: "row_id", Value: []byte(id)},
			{Key: "run_id", Value: []byte(report.RunID)},
			{Key: "generated_at", Value: []byte(report.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
