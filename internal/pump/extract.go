package pump

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mcp-watch/mcpwatch/internal/model"
)

// NodeResolver resolves server ids to node descriptors and public
// addresses. In production this is the region's mcp.Endpoint.
type NodeResolver interface {
	NodeByID(ctx context.Context, id string) (*model.Node, error)
	PublicIP(ctx context.Context, networkDomainID, privateIP string) (string, error)
}

// subjectRe matches the audit subject shape `<name>[<prefix>_<id>]`, e.g.
// "web-01[SERVER_b4ea8995-43a8-4a42-9eb9-1a52d3e5d201]".
var subjectRe = regexp.MustCompile(`^(.*)\[[^\[\]_]+_([^\[\]]+)\]$`)

// lifecycleActions are the completed audit actions that mean a server is up
// (or coming up) and worth reporting.
var lifecycleActions = map[string]bool{
	"deploy-server": true,
	"start-server":  true,
	"reboot-server": true,
}

func normalizeAction(action string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(action)), " ", "-")
}

// extractor turns filtered audit rows into deduplicated server events for
// one region. Node lookups are memoized per batch: the arena is discarded
// after each extraction, so there is no cross-batch staleness.
type extractor struct {
	region   string
	resolver NodeResolver
	logger   *slog.Logger
}

// extract scans rows for completed server-lifecycle actions and resolves
// each to a full server descriptor. The result is newest-first with exactly
// one event per server id. Bad rows and failed lookups are skipped, never
// fatal to the batch.
func (x *extractor) extract(ctx context.Context, header model.Header, rows []model.Row) []model.ServerEvent {
	if header == nil || len(rows) == 0 {
		return nil
	}

	// Per-batch lookup arena; nil marks an id as unresolved so later rows
	// for the same server short-circuit.
	nodes := make(map[string]*model.Node)

	var events []model.ServerEvent
	for _, row := range rows {
		if ev, ok := x.eventFromRow(ctx, header, row, nodes); ok {
			events = append(events, ev)
		}
	}

	// Audit rows arrive oldest first. Walking backwards keeps the most
	// recent action per server and yields newest-first output.
	seen := make(map[string]bool, len(events))
	out := make([]model.ServerEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if seen[events[i].ID] {
			continue
		}
		seen[events[i].ID] = true
		out = append(out, events[i])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (x *extractor) eventFromRow(ctx context.Context, header model.Header, row model.Row, nodes map[string]*model.Node) (model.ServerEvent, bool) {
	// Only completed actions on servers matter.
	if !strings.EqualFold(header.Field(row, model.ColType), "server") {
		return model.ServerEvent{}, false
	}
	if header.Field(row, model.ColResponseCode) != "OK" {
		return model.ServerEvent{}, false
	}

	action := header.Field(row, model.ColAction)
	if !lifecycleActions[normalizeAction(action)] {
		return model.ServerEvent{}, false
	}

	subject := header.Field(row, model.ColName)
	m := subjectRe.FindStringSubmatch(subject)
	if m == nil {
		x.logger.Debug("audit subject does not name a server", "region", x.region, "subject", subject)
		return model.ServerEvent{}, false
	}
	name, id := m[1], m[2]

	node, cached := nodes[id]
	if !cached {
		var err error
		node, err = x.resolver.NodeByID(ctx, id)
		if err != nil {
			x.logger.Warn("node lookup failed", "region", x.region, "server", id, "error", err)
			node = nil
		}
		nodes[id] = node
	}
	if node == nil {
		return model.ServerEvent{}, false
	}

	publicIP := node.PublicIP
	if publicIP == "" {
		// The server payload does not carry the public address; the NAT
		// rule does. Failures here just leave the address absent.
		ip, err := x.resolver.PublicIP(ctx, node.NetworkDomainID, node.PrimaryPrivateIP())
		if err != nil {
			x.logger.Debug("public ip resolution failed", "region", x.region, "server", id, "error", err)
		} else {
			publicIP = ip
		}
	}

	return model.ServerEvent{
		Name:            name,
		ID:              id,
		Action:          action,
		Timestamp:       header.Field(row, model.ColTime),
		Region:          x.region,
		Description:     node.Description,
		PrivateIP:       node.PrimaryPrivateIP(),
		PublicIP:        publicIP,
		SourceImageID:   node.SourceImageID,
		NetworkDomainID: node.NetworkDomainID,
		DatacenterID:    node.DatacenterID,
		DeployedTime:    node.DeployedTime,
		CPUCount:        node.CPUCount,
		MemoryMB:        node.MemoryMB,
		OSID:            node.OSID,
		OSType:          node.OSType,
		OSDisplayName:   node.OSDisplayName,
		Disks:           node.Disks,
	}, true
}
