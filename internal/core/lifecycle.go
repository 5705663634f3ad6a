package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after
// instantiation: defaults, opening resources, registering services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration.
// Called after Provision. Validate should have no side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that start background work
// (listeners, schedulers). Called once every module is provisioned.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that release resources.
// Called during shutdown in reverse order of Start.
type Stopper interface {
	Stop(ctx context.Context) error
}
