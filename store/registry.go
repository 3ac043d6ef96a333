// Package store is a registry of blob store implementations.
// Each subpackage registers itself in an init function,
// so importing one for side effects makes it available by name.
package store

import (
	"context"
	"fmt"

	"github.com/bobg/ardag"
)

type Factory func(context.Context, map[string]interface{}) (ardag.Store, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

func Create(ctx context.Context, key string, conf map[string]interface{}) (ardag.Store, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig creates a Store from a config map whose "type" entry selects the factory.
func FromConfig(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("store config missing `type` parameter")
	}
	return Create(ctx, typ, conf)
}
