package plugin

import (
	"github.com/BDNK1/flowtest/runtime"
)

// Initializer is called once at startup, after Config is applied.
type Initializer = runtime.Initializer

// Shutdowner is called once at shutdown.
type Shutdowner = runtime.Shutdowner

// ResourceProvider supplies the default resource for each flow execution.
type ResourceProvider = runtime.ResourceProvider
