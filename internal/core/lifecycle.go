package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their YAML section before Provision.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is where a module builds its clients and publishes services
// on the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks a provisioned module. It must not have side effects.
type Validator interface {
	Validate() error
}

// Starter modules begin background work once every module is provisioned
// and validated.
type Starter interface {
	Start() error
}

// Stopper modules release resources. Stop runs in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reconfigurable modules accept a changed YAML section while running. An
// error leaves the previous settings in effect.
type Reconfigurable interface {
	Reconfigure(node *yaml.Node) error
}
