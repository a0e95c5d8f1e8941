package envutil

import "context"

type envContextKey string

// WithEnvOverride returns a context in which key reads as value, regardless
// of the process environment. Overrides let tests and embedded callers
// configure a component without mutating global state.
func WithEnvOverride(ctx context.Context, key string, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, envContextKey(key), value)
}

// WithEnvOverrides applies every entry of vars as an override.
func WithEnvOverrides(ctx context.Context, vars map[string]string) context.Context {
	for key, value := range vars {
		ctx = WithEnvOverride(ctx, key, value)
	}

	return ctx
}

func getEnvOverride(ctx context.Context, key string) (string, bool) {
	if ctx == nil {
		return "", false
	}

	val, ok := ctx.Value(envContextKey(key)).(string)

	return val, ok
}
