// Package plugin lets external code register additional pipeline
// middleware at process startup without modifying the core chain
// construction.
package plugin

import (
	"github.com/allaspectsdev/webcore/internal/pipeline"
)

// Plugin defines the interface that all plugins must implement.
type Plugin interface {
	// Name returns the unique name of this plugin.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init is called once when the plugin is loaded.
	Init(config map[string]interface{}) error

	// Close is called when the plugin is being unloaded.
	Close() error
}

// MiddlewarePlugin is a Plugin that also acts as pipeline middleware, so
// it slots into the Chain alongside the built-in middlewares.
type MiddlewarePlugin interface {
	Plugin
	pipeline.Middleware
}
