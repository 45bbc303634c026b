// Package mcp implements the per-region client for the Managed Cloud
// Platform API: tabular usage/audit report pulls, node lookups, and
// NAT-rule resolution of public addresses.
package mcp

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mcp-watch/mcpwatch/internal/httpclient"
	"github.com/mcp-watch/mcpwatch/internal/model"
)

// hosts maps region codes to their API endpoints.
var hosts = map[string]string{
	"dd-af": "https://api-mea.dimensiondata.com",
	"dd-ap": "https://api-ap.dimensiondata.com",
	"dd-au": "https://api-au.dimensiondata.com",
	"dd-eu": "https://api-eu.dimensiondata.com",
	"dd-na": "https://api-na.dimensiondata.com",
}

const dateLayout = "2006-01-02"

var orgIDRe = regexp.MustCompile(`:orgId>([a-f0-9\-]+)</`)

// Endpoint is a per-region API client. One instance per monitored region,
// created at startup and kept for the process lifetime.
type Endpoint struct {
	region string
	v1     string // versioned path prefix incl. org id
	v2     string
	client *httpclient.Client
}

type options struct {
	endpoint string
	orgID    string
	timeout  time.Duration
}

// Option configures Endpoint construction.
type Option func(*options)

// WithEndpoint overrides the region's default API host (for tests).
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// WithOrgID skips the org-id discovery call (for tests).
func WithOrgID(id string) Option {
	return func(o *options) { o.orgID = id }
}

// WithTimeout sets the HTTP timeout for all API calls.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New creates an Endpoint for one region. Unless injected via WithOrgID,
// the organization id is discovered from the account profile, which costs
// one authenticated round trip.
func New(ctx context.Context, key, secret, region string, opts ...Option) (*Endpoint, error) {
	if key == "" || secret == "" {
		return nil, fmt.Errorf("mcp: missing credentials for region %s", region)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := o.endpoint
	if endpoint == "" {
		var ok bool
		endpoint, ok = hosts[region]
		if !ok {
			return nil, fmt.Errorf("mcp: unknown region %q", region)
		}
	}

	var clientOpts []httpclient.Option
	if o.timeout > 0 {
		clientOpts = append(clientOpts, httpclient.WithTimeout(o.timeout))
	}
	client := httpclient.New(endpoint, key, secret, clientOpts...)

	orgID := o.orgID
	if orgID == "" {
		body, err := client.Get(ctx, "/oec/0.9/myaccount", nil)
		if err != nil {
			return nil, &TransportError{Region: region, Op: "myaccount", Err: err}
		}
		m := orgIDRe.FindSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("mcp: no org id in account profile for region %s", region)
		}
		orgID = string(m[1])
	}

	return &Endpoint{
		region: region,
		v1:     "/oec/0.9/" + orgID,
		v2:     "/caas/2.5/" + orgID,
		client: client,
	}, nil
}

// Region returns the region code this endpoint serves.
func (e *Endpoint) Region() string { return e.region }

// SummaryUsage fetches the summary usage report for the [start, end] window.
// The trailing grand-total row is dropped; the header row is retained as the
// first row.
func (e *Endpoint) SummaryUsage(ctx context.Context, start, end time.Time) ([]model.Row, error) {
	return e.report(ctx, "summary usage", "/report/usage", start, end, true)
}

// DetailedUsage fetches the detailed usage report for the [start, end] window.
func (e *Endpoint) DetailedUsage(ctx context.Context, start, end time.Time) ([]model.Row, error) {
	return e.report(ctx, "detailed usage", "/report/usageDetailed", start, end, true)
}

// AuditLog fetches the audit log for the [start, end] window. All rows are
// retained, header first.
func (e *Endpoint) AuditLog(ctx context.Context, start, end time.Time) ([]model.Row, error) {
	return e.report(ctx, "audit log", "/auditlog", start, end, false)
}

func (e *Endpoint) report(ctx context.Context, op, path string, start, end time.Time, dropTotal bool) ([]model.Row, error) {
	q := url.Values{
		"startDate": {start.Format(dateLayout)},
		"endDate":   {end.Format(dateLayout)},
	}

	body, err := e.client.Get(ctx, e.v1+path, q)
	if err != nil {
		return nil, &TransportError{Region: e.region, Op: op, Err: err}
	}

	rows := parseRows(string(body))
	if len(rows) == 0 {
		return nil, nil
	}

	first := strings.Join(rows[0], ",")
	if len(first) < 1 || strings.HasPrefix(first, "<!DOCTYPE") || strings.HasPrefix(first, "<?xml") {
		return nil, fmt.Errorf("mcp %s: %s: %w", e.region, op, ErrMalformedReport)
	}

	if dropTotal {
		rows = rows[:len(rows)-1]
	}
	return rows, nil
}

// parseRows splits a report payload into rows of comma-separated fields.
// The remote reports do not quote fields, so a plain split matches the wire
// format.
func parseRows(text string) []model.Row {
	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	rows := make([]model.Row, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, model.Row(strings.Split(strings.TrimRight(line, "\r"), ",")))
	}
	return rows
}
