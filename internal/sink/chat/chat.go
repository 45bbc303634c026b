// Package chat is a sink that posts server activations to a chat room over
// an incoming webhook.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

func init() {
	sink.Register("chat", func(cfg *config.Config) (sink.Sink, bool, error) {
		if cfg.Chat.WebhookURL == "" {
			return nil, false, nil
		}
		return New(cfg.Chat), true, nil
	})
}

// Sink posts one webhook message per event batch. Report rows are too noisy
// for a chat room and are ignored.
type Sink struct {
	sink.Base
	webhookURL string
	httpClient *http.Client
}

// New creates a chat sink from configuration.
func New(cfg config.ChatConfig) *Sink {
	return &Sink{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Sink) Name() string { return "chat" }

func (s *Sink) OnServerEvents(ctx context.Context, events []model.ServerEvent, region string) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d active server(s) detected in %s\n", len(events), region)
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s (%s)", ev.Name, strings.ToLower(ev.Action))
		if ev.PublicIP != "" {
			fmt.Fprintf(&b, " at %s", ev.PublicIP)
		} else if ev.PrivateIP != "" {
			fmt.Fprintf(&b, " at %s (private)", ev.PrivateIP)
		}
		b.WriteString("\n")
	}

	msg := &slack.WebhookMessage{Text: b.String()}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, msg); err != nil {
		return fmt.Errorf("chat sink: %w", err)
	}
	return nil
}
