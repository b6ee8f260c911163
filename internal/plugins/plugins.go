// Package plugins enables the built-in optional modules by name.
package plugins

import (
	"fmt"

	"mirror-go/internal/hooks"
	"mirror-go/internal/plugins/legacytax"
	"mirror-go/internal/plugins/seo"
)

var registry = map[string]func(*hooks.Pipeline) func(){
	seo.Name:       seo.Register,
	legacytax.Name: legacytax.Register,
}

// Names returns the names of every built-in plugin.
func Names() []string {
	return []string{seo.Name, legacytax.Name}
}

// Enable registers the named plugins on p. It returns a function that
// unregisters all of them. Unknown names are an error and nothing is registered.
func Enable(p *hooks.Pipeline, names []string) (func(), error) {
	for _, name := range names {
		if _, ok := registry[name]; !ok {
			return nil, fmt.Errorf("unknown plugin: %q", name)
		}
	}

	var offs []func()
	for _, name := range names {
		offs = append(offs, registry[name](p))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}, nil
}
