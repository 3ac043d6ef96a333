package ledger

import (
	"context"
	"fmt"
)

type Factory func(context.Context, map[string]interface{}) (Ledger, error)

var registry = make(map[string]Factory)

func Register(key string, f Factory) {
	registry[key] = f
}

func Create(ctx context.Context, key string, conf map[string]interface{}) (Ledger, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig creates a Ledger from a config map whose "type" entry selects the factory.
func FromConfig(ctx context.Context, conf map[string]interface{}) (Ledger, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("ledger config missing `type` parameter")
	}
	return Create(ctx, typ, conf)
}
