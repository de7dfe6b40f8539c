package executor

import (
	"context"
	"fmt"
	"sync"
)

// PluginAction is a request action contributed by a plugin (e.g.
// internal/notify/slack's "plugin.slack.resend_notifications"), keyed
// by its full dotted name including the "plugin." prefix.
type PluginAction func(ctx context.Context, params map[string]any) error

// PluginRegistry is a small string-keyed stand-in for the original's
// get_plugin_attribute dynamic attribute lookup (plugins.attribute_select
// resolves "plugin.<name>.<path>" by importing a Python module and
// walking its attributes at runtime). Go has no equivalent dynamic
// import, so a plugin instead calls Register at startup with the exact
// dotted name the request handler will look up.
type PluginRegistry struct {
	mu      sync.RWMutex
	actions map[string]PluginAction
}

// NewPluginRegistry returns an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{actions: make(map[string]PluginAction)}
}

// Register binds name (e.g. "plugin.slack.resend_notifications") to
// action. Registering the same name twice replaces the prior binding.
func (r *PluginRegistry) Register(name string, action PluginAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = action
}

// Get looks up name, returning ok=false if no plugin registered it.
func (r *PluginRegistry) Get(name string) (PluginAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}

var errPluginNotFound = fmt.Errorf("plugin action not found")
