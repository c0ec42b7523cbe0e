// Package plugin defines the host-side provider model: the typed interfaces
// environments and deployments are consumed through, and the hive that
// discovers and indexes plugins at startup.
//
// Two plugin flavors satisfy these interfaces: in-process built-ins
// (runtime/plugin/builtin) and shared libraries loaded across the C ABI
// (runtime/plugin/native).
package plugin

// ABIVersion is the plugin ABI version both sides of the boundary compile
// against. The loader rejects any manifest carrying a different value.
const ABIVersion = 1

// EnvironmentProvider constructs environments of one kind.
type EnvironmentProvider interface {
	// Name is the provider's kind, the part after the `/` in an env-block
	// name.
	Name() string
	// Create constructs an environment instance. The returned Environment
	// must be consumed by exactly one Finish call.
	Create(params map[string]string) (Environment, error)
}

// Environment is a live execution context. Implementations are not safe for
// concurrent use of a single instance; distinct instances may be driven
// concurrently.
type Environment interface {
	// Action runs a named step inside the environment.
	Action(name string, params map[string]string) error
	// Finish flushes the environment's result image to path and destroys it.
	// The receiver is invalid afterwards.
	Finish(path string) error
}

// DeploymentProvider publishes built artifacts. Deploy may be called
// concurrently with distinct or identical arguments.
type DeploymentProvider interface {
	Name() string
	Deploy(path string, params map[string]string) error
}

// Plugin is one named plugin: a set of environment providers and deployment
// providers indexed by kind.
type Plugin interface {
	Name() string
	Environment(kind string) (EnvironmentProvider, bool)
	Deployment(kind string) (DeploymentProvider, bool)
	// Close releases the plugin. For native plugins this tears down the
	// manifest and unloads the library; built-ins are a no-op.
	Close() error
}
