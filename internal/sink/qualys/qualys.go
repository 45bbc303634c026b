// Package qualys is a sink that reacts to server activations by registering
// the public address with Qualys and launching a vulnerability scan.
package qualys

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/httpclient"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

const (
	ipPath   = "/api/2.0/fo/asset/ip/"
	scanPath = "/api/2.0/fo/scan/"

	defaultOptionName = "Initial Options"
)

func init() {
	sink.Register("qualys", func(cfg *config.Config) (sink.Sink, bool, error) {
		if !cfg.Qualys.Active {
			return nil, false, nil
		}
		if cfg.Qualys.URL == "" || cfg.Qualys.Login == "" || cfg.Qualys.Password == "" {
			return nil, false, fmt.Errorf("qualys sink: active but url or credentials missing")
		}
		return New(cfg.Qualys), true, nil
	})
}

// scanActions are the events worth a scan: a server that just came up (or
// back up) on a public address. Fresh deploys are not scanned until their
// first start.
var scanActions = map[string]bool{
	"start-server":  true,
	"reboot-server": true,
}

// Sink triggers one scan per activated server that exposes a public
// address. Usage reports are ignored; only server events matter here.
type Sink struct {
	sink.Base
	client     *httpclient.Client
	optionName string
	logger     *slog.Logger
	newTicket  func() string
}

// New creates a Qualys sink from configuration.
func New(cfg config.QualysConfig) *Sink {
	option := cfg.OptionName
	if option == "" {
		option = defaultOptionName
	}
	return &Sink{
		// Qualys rejects API calls without X-Requested-With.
		client: httpclient.New(cfg.URL, cfg.Login, cfg.Password,
			httpclient.WithHeader("X-Requested-With", "mcpwatch")),
		optionName: option,
		logger:     slog.Default(),
		newTicket:  uuid.NewString,
	}
}

func (s *Sink) Name() string { return "qualys" }

// OnServerEvents registers each public address and launches a scan against
// it. Servers without a public address cannot be reached by the scanner and
// are skipped.
func (s *Sink) OnServerEvents(ctx context.Context, events []model.ServerEvent, region string) error {
	var firstErr error
	for _, ev := range events {
		if !scanActions[normalizeAction(ev.Action)] {
			continue
		}
		if ev.PublicIP == "" {
			s.logger.Debug("no public address, skipping scan",
				"region", region, "server", ev.Name)
			continue
		}
		if err := s.scan(ctx, ev); err != nil {
			s.logger.Error("scan trigger failed",
				"region", region, "server", ev.Name, "ip", ev.PublicIP, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.Info("triggered vulnerability scan",
			"region", region, "server", ev.Name, "ip", ev.PublicIP)
	}
	return firstErr
}

func normalizeAction(action string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(action)), " ", "-")
}

func (s *Sink) scan(ctx context.Context, ev model.ServerEvent) error {
	add := url.Values{
		"action":    {"add"},
		"ips":       {ev.PublicIP},
		"enable_vm": {"1"},
	}
	if _, err := s.client.Post(ctx, ipPath, add); err != nil {
		return fmt.Errorf("add ip %s: %w", ev.PublicIP, err)
	}

	launch := url.Values{
		"action":       {"launch"},
		"scan_title":   {fmt.Sprintf("%s %s", ev.Name, s.newTicket())},
		"ip":           {ev.PublicIP},
		"option_title": {s.optionName},
	}
	if _, err := s.client.Post(ctx, scanPath, launch); err != nil {
		return fmt.Errorf("launch scan on %s: %w", ev.PublicIP, err)
	}
	return nil
}
