// discovery.go implements the dynamic side of plugin loading: Go
// shared objects (.so files) built with `go build -buildmode=plugin`
// and loaded at runtime via the standard library's plugin package.
// Each .so must export a `NewPlugin` symbol of type
// func(model.Manifest, map[string]interface{}) (plugin.Handler, error).
//
// This mirrors the teacher's discovery.go design: built-in plugins are
// enumerated from the compile-time registry (registry.go); dynamic
// plugins are found by scanning a fixed set of directories for .so
// files. The plugin manager does not merge the two lists: Manager.Load
// only looks constructors up in the compile-time registry, so a
// discovered .so file is used only by a caller that loads it through
// Discovery.Load and registers the result itself.
package plugin

import (
	"path/filepath"
	goplugin "plugin"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/logger"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// dynamicConstructorSymbol is the exported symbol name every .so
// plugin must provide.
const dynamicConstructorSymbol = "NewPlugin"

// Discovery scans a fixed set of directories for dynamically loadable
// plugin .so files, and can optionally watch them for changes.
type Discovery struct {
	dirs []string

	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewDiscovery returns a Discovery scanning dirs, in priority order.
// The supervisor passes two locations: its configured plugin
// directory and <home>/plugins.
func NewDiscovery(dirs ...string) *Discovery {
	return &Discovery{dirs: dirs}
}

// DynamicPluginFile is one discovered .so file, not yet loaded.
type DynamicPluginFile struct {
	Name string
	Path string
}

// Scan walks every configured directory (non-recursively — plugin
// .so files live directly under one of the conventional directories,
// not nested) and returns every *.so file found, keyed by its base
// name without extension.
func (d *Discovery) Scan() ([]DynamicPluginFile, error) {
	var found []DynamicPluginFile
	seen := make(map[string]bool)

	for _, dir := range d.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
		if err != nil {
			continue
		}
		for _, m := range matches {
			name := filepath.Base(m)
			name = name[:len(name)-len(filepath.Ext(name))]
			if seen[name] {
				continue
			}
			seen[name] = true
			found = append(found, DynamicPluginFile{Name: name, Path: m})
		}
	}
	return found, nil
}

// Load opens the .so at path and returns its exported constructor.
// Dynamic loading is inherently platform- and build-mode-dependent
// (it requires the running binary and the .so to have been built
// with matching toolchains and is unsupported on some platforms
// entirely) — callers should treat a Load failure the same way
// spec.md §4.7 treats a missing manifest: disable the plugin with
// inError rather than treating it as fatal.
func (d *Discovery) Load(path string) (ConstructorFunc, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, apperr.Plugin(apperr.CodePluginLoadError, "open plugin object "+path, err, true)
	}
	sym, err := p.Lookup(dynamicConstructorSymbol)
	if err != nil {
		return nil, apperr.Plugin(apperr.CodePluginLoadError, "missing "+dynamicConstructorSymbol+" symbol in "+path, err, true)
	}
	ctor, ok := sym.(func(model.Manifest, map[string]interface{}) (Handler, error))
	if !ok {
		return nil, apperr.Plugin(apperr.CodePluginLoadError, "unexpected NewPlugin signature in "+path, nil, true)
	}
	return ConstructorFunc(ctor), nil
}

// Watch starts an fsnotify watch on every configured directory,
// invoking onChange whenever a .so file is created, written, or
// removed. Watch only refreshes the discoverable set — it never
// auto-registers a newly appeared plugin into the roster; that still
// requires an explicit add call.
func (d *Discovery) Watch(onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return apperr.Plugin(apperr.CodePluginLoadError, "create plugin directory watcher", err, true)
	}

	for _, dir := range d.dirs {
		if err := w.Add(dir); err != nil {
			logger.Plugin().Warn().Str("dir", dir).Err(err).Msg("could not watch plugin directory")
			continue
		}
	}

	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".so" {
					continue
				}
				onChange()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Plugin().Warn().Err(err).Msg("plugin directory watch error")
			}
		}
	}()

	return nil
}

// Close stops the directory watch, if one was started.
func (d *Discovery) Close() error {
	d.mu.RLock()
	w := d.watcher
	d.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
