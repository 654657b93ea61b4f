package runtime

import "context"

// Initializer allows plugins to perform startup initialization.
// Initialize is called once by the container after config has been applied.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Shutdowner allows plugins to release what they hold at shutdown.
// Plugins are shut down in reverse registration order.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ResourceProvider supplies the Default Resource used by steps that
// do not name one through their selector field.
type ResourceProvider interface {
	DefaultResource(ctx context.Context) (Resource, error)
}

// Lookup reads a value from a dotted/bracketed context path.
type Lookup interface {
	Get(path string) (any, bool)
}

// View is the read-only face of a Context Store handed to functions.
type View interface {
	Lookup
	All() map[string]any
}
