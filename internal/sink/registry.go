package sink

import (
	"fmt"
	"sort"

	"github.com/mcp-watch/mcpwatch/internal/config"
)

// Constructor builds a sink from configuration. It returns ok=false when the
// configuration does not enable the sink.
type Constructor func(cfg *config.Config) (Sink, bool, error)

var registry = map[string]Constructor{}

// Register adds a sink constructor under the given name. Sinks register
// themselves in init; importers select them with blank imports.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the sink constructor for the given name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown sink: %s", name)
	}
	return ctor, nil
}

// Names returns all registered sink names in stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds every registered sink the configuration enables,
// in Names() order.
func FromConfig(cfg *config.Config) ([]Sink, error) {
	var sinks []Sink
	for _, name := range Names() {
		s, ok, err := registry[name](cfg)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		if ok {
			sinks = append(sinks, s)
		}
	}
	return sinks, nil
}
