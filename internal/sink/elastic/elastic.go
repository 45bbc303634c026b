// Package elastic is a sink that indexes report rows and server events into
// Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

const defaultIndex = "mcpwatch"

func init() {
	sink.Register("elasticsearch", func(cfg *config.Config) (sink.Sink, bool, error) {
		if len(cfg.Elasticsearch.Addresses) == 0 {
			return nil, false, nil
		}
		s, err := New(cfg.Elasticsearch)
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	})
}

// Sink indexes one document per report row and per server event. All
// documents share one index and carry a "report" discriminator field.
type Sink struct {
	sink.Base
	client *elasticsearch.Client
	index  string
}

// New creates an Elasticsearch sink from configuration.
func New(cfg config.ElasticConfig) (*Sink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.Addresses})
	if err != nil {
		return nil, fmt.Errorf("elastic sink: %w", err)
	}
	index := cfg.Index
	if index == "" {
		index = defaultIndex
	}
	return &Sink{client: client, index: index}, nil
}

func (s *Sink) Name() string { return "elasticsearch" }

func (s *Sink) UpdateSummary(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.indexRows(ctx, "summary_usage", header, rows, region)
}

func (s *Sink) UpdateDetailed(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.indexRows(ctx, "detailed_usage", header, rows, region)
}

func (s *Sink) UpdateAudit(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.indexRows(ctx, "audit_log", header, rows, region)
}

func (s *Sink) OnServerEvents(ctx context.Context, events []model.ServerEvent, region string) error {
	for _, ev := range events {
		doc := struct {
			Report string `json:"report"`
			model.ServerEvent
		}{"server_event", ev}
		id := ev.ID
		if ev.Timestamp != "" {
			id = ev.ID + "-" + ev.Timestamp
		}
		if err := s.indexDoc(ctx, id, doc); err != nil {
			return err
		}
	}
	return nil
}

// indexRows turns each row into a flat document keyed by the header names.
// Audit rows reuse their platform UUID as document id, so re-pumped days
// overwrite instead of duplicating.
func (s *Sink) indexRows(ctx context.Context, report string, header model.Header, rows []model.Row, region string) error {
	if header == nil || len(rows) == 0 {
		return nil
	}

	names := make(map[int]string, len(header))
	for name, i := range header {
		names[i] = name
	}

	for _, row := range rows {
		doc := make(map[string]string, len(row)+2)
		doc["report"] = report
		doc["region"] = region
		for i, value := range row {
			if name, ok := names[i]; ok && value != "" {
				doc[name] = value
			}
		}

		id := header.Field(row, model.ColUUID)
		if id == "" {
			id = uuid.NewString()
		}
		if err := s.indexDoc(ctx, id, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) indexDoc(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elastic sink: marshal: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elastic sink: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elastic sink: index %s: %s", id, res.Status())
	}
	return nil
}
