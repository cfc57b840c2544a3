// Package registry implements the in-memory device registry: the set
// of bridged endpoints currently known to the supervisor, keyed by
// stable composite identity. It enforces per-plugin serial uniqueness
// and publishes a "devices-changed" refresh to the frontend contract
// on every mutation.
package registry

import (
	"sync"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/frontend"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// Identity is the composite key of an endpoint: plugin name plus
// serial, unique within that plugin.
type Identity struct {
	Plugin string
	Serial string
}

// Registry is the mutable set of bridged endpoints. Mutation only
// happens from plugin-originated add/remove calls; reads are safe
// from any goroutine, including the frontend outbound path.
type Registry struct {
	mu       sync.RWMutex
	entries  map[Identity]*model.Endpoint
	notifier frontend.Notifier
}

// New returns an empty Registry that publishes change notifications
// through notifier.
func New(notifier frontend.Notifier) *Registry {
	return &Registry{
		entries:  make(map[Identity]*model.Endpoint),
		notifier: notifier,
	}
}

// Set inserts or replaces the endpoint. It enforces that a given
// plugin's serials are unique: a Set with the same Identity replaces
// the previous endpoint, but inserting a second endpoint with a
// colliding serial across plugins is permitted — uniqueness is scoped
// to one plugin's serials, matching spec.md §4.3.
func (r *Registry) Set(ep *model.Endpoint) error {
	if ep.PluginName == "" || ep.Serial == "" {
		return apperr.Matter(apperr.CodeAddEndpointError, "endpoint requires plugin name and serial", nil)
	}

	r.mu.Lock()
	r.entries[Identity{Plugin: ep.PluginName, Serial: ep.Serial}] = ep
	r.mu.Unlock()

	logger.Plugin().Debug().Str("plugin", ep.PluginName).Str("serial", ep.Serial).Msg("endpoint registered")
	r.publishChange()
	return nil
}

// Remove deletes the endpoint identified by (plugin, serial), if
// present.
func (r *Registry) Remove(plugin, serial string) {
	r.mu.Lock()
	delete(r.entries, Identity{Plugin: plugin, Serial: serial})
	r.mu.Unlock()
	r.publishChange()
}

// RemoveAll deletes every endpoint owned by plugin, returning how many
// were removed.
func (r *Registry) RemoveAll(plugin string) int {
	r.mu.Lock()
	n := 0
	for id := range r.entries {
		if id.Plugin == plugin {
			delete(r.entries, id)
			n++
		}
	}
	r.mu.Unlock()
	if n > 0 {
		r.publishChange()
	}
	return n
}

// Array returns every endpoint currently registered, in no particular
// order.
func (r *Registry) Array() []*model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Endpoint, 0, len(r.entries))
	for _, ep := range r.entries {
		out = append(out, ep)
	}
	return out
}

// ForPlugin returns every endpoint owned by plugin.
func (r *Registry) ForPlugin(plugin string) []*model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Endpoint
	for id, ep := range r.entries {
		if id.Plugin == plugin {
			out = append(out, ep)
		}
	}
	return out
}

// Count returns the number of endpoints owned by plugin — the value
// the spec's RegisteredDevices invariant checks against.
func (r *Registry) Count(plugin string) int {
	return len(r.ForPlugin(plugin))
}

// Clear removes every endpoint.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[Identity]*model.Endpoint)
	r.mu.Unlock()
	r.publishChange()
}

func (r *Registry) publishChange() {
	if r.notifier != nil {
		r.notifier.RefreshRequired(frontend.ScopePlugins)
	}
}
