package plugin

import "github.com/matterbridge-go/matterbridge/internal/model"

// Handler is the interface a plugin implementation provides. It
// mirrors the lifecycle ordering spec.md §5 requires within a single
// plugin: parse -> load -> start -> configure -> (device add/remove
// events) -> shutdown.
type Handler interface {
	// OnLoad is called once the plugin's runtime instance has been
	// constructed with its Context. Returning an error sets the
	// plugin in_error and must not crash the supervisor.
	OnLoad(ctx *Context) error

	// OnStart is called after a successful OnLoad when start=true was
	// requested, with the reason the manager is starting it.
	OnStart(reason string) error

	// OnConfigure is called once the plugin has started. It returns a
	// three-valued result: nil (success), an *apperr.Error with
	// Recoverable=true (surfaces a snackbar but isn't fatal), or any
	// other error (treated as an exception and isolates the plugin).
	OnConfigure() error

	// OnShutdown is called during plugin removal or supervisor
	// cleanup, with a human-readable reason.
	OnShutdown(reason string) error
}

// ConstructorFunc builds a fresh Handler instance for a given plugin
// name — the compile-time registry's entry shape, mirroring the
// teacher's Register("name", ConstructorFunc) pattern.
type ConstructorFunc func(manifest model.Manifest, config map[string]interface{}) (Handler, error)
