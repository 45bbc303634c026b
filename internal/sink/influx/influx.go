// Package influx is a sink that writes usage reports and server events as
// InfluxDB measurements.
package influx

import (
	"context"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

const timeLayout = "2006-01-02T15:04:05"

func init() {
	sink.Register("influxdb", func(cfg *config.Config) (sink.Sink, bool, error) {
		if cfg.InfluxDB.URL == "" || cfg.InfluxDB.Bucket == "" {
			return nil, false, nil
		}
		return New(cfg.InfluxDB), true, nil
	})
}

// tagColumns are report columns stored as tags rather than fields; the rest
// of the row becomes fields, numeric where the value parses.
var tagColumns = []string{"Name", "UUID", "Type", "Location"}

// pointWriter is the slice of the InfluxDB write API the sink needs.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Sink writes one point per report row and per server event.
type Sink struct {
	sink.Base
	client influxdb2.Client
	writer pointWriter
	now    func() time.Time
}

// New creates an InfluxDB sink from configuration.
func New(cfg config.InfluxConfig) *Sink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		now:    time.Now,
	}
}

func (s *Sink) Name() string { return "influxdb" }

// Close flushes buffered writes and shuts the client down.
func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func (s *Sink) UpdateSummary(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.writeRows(ctx, "summary_usage", header, rows, region)
}

func (s *Sink) UpdateDetailed(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.writeRows(ctx, "detailed_usage", header, rows, region)
}

func (s *Sink) UpdateAudit(ctx context.Context, header model.Header, rows []model.Row, region string) error {
	return s.writeRows(ctx, "audit_log", header, rows, region)
}

func (s *Sink) OnServerEvents(ctx context.Context, events []model.ServerEvent, region string) error {
	points := make([]*write.Point, 0, len(events))
	for _, ev := range events {
		tags := map[string]string{
			"region": region,
			"name":   ev.Name,
			"action": ev.Action,
		}
		if ev.DatacenterID != "" {
			tags["datacenter"] = ev.DatacenterID
		}
		disks := 0
		for _, gb := range ev.Disks {
			disks += gb
		}
		fields := map[string]any{
			"id":         ev.ID,
			"private_ip": ev.PrivateIP,
			"cpu_count":  ev.CPUCount,
			"memory_mb":  ev.MemoryMB,
			"disk_gb":    disks,
		}
		if ev.PublicIP != "" {
			fields["public_ip"] = ev.PublicIP
		}
		points = append(points, influxdb2.NewPoint("server_events", tags, fields, s.rowTime(ev.Timestamp)))
	}
	if len(points) == 0 {
		return nil
	}
	return s.writer.WritePoint(ctx, points...)
}

// writeRows maps each row onto one point: the well-known identity columns
// become tags, everything else becomes a field, numeric when the value
// parses as a float.
func (s *Sink) writeRows(ctx context.Context, measurement string, header model.Header, rows []model.Row, region string) error {
	if header == nil || len(rows) == 0 {
		return nil
	}

	tagged := make(map[int]bool)
	for _, col := range tagColumns {
		if i, ok := header[strings.ToLower(col)]; ok {
			tagged[i] = true
		}
	}
	timeIdx := -1
	if i, ok := header["time"]; ok {
		timeIdx = i
		tagged[i] = true
	}
	names := make(map[int]string, len(header))
	for name, i := range header {
		names[i] = strings.ReplaceAll(name, " ", "_")
	}

	points := make([]*write.Point, 0, len(rows))
	for _, row := range rows {
		tags := map[string]string{"region": region}
		fields := make(map[string]any)
		for i, value := range row {
			name, ok := names[i]
			if !ok {
				continue
			}
			switch {
			case i == timeIdx:
				// consumed as the point timestamp
			case tagged[i]:
				if value != "" {
					tags[name] = value
				}
			default:
				if f, err := strconv.ParseFloat(value, 64); err == nil {
					fields[name] = f
				} else if value != "" {
					fields[name] = value
				}
			}
		}
		if len(fields) == 0 {
			continue
		}
		ts := s.now()
		if timeIdx >= 0 {
			ts = s.rowTime(header.Field(row, "Time"))
		}
		points = append(points, influxdb2.NewPoint(measurement, tags, fields, ts))
	}
	if len(points) == 0 {
		return nil
	}
	return s.writer.WritePoint(ctx, points...)
}

func (s *Sink) rowTime(value string) time.Time {
	if t, err := time.ParseInLocation(timeLayout, value, time.UTC); err == nil {
		return t
	}
	return s.now()
}
