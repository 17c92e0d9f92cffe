// Package plugin_iface defines the Enclave plugin contract (PluginV1).
// All external plugins must implement this interface and export an
// "EnclavePlugin" symbol.
package v1

// PluginAPIVersion is the current plugin API version.
// Checked at plugin load time to prevent incompatible plugins from loading.
const PluginAPIVersion = "v1"

// HookFunc is a function invoked at a named lifecycle point.
type HookFunc func(ctx HookContext) error

// HookContext carries contextual data passed to plugin hooks.
type HookContext struct {
	Environment *Environment
	Deployment  *Deployment
	Promotion   *Promotion
	// Metadata is a free-form map for passing extension data between hooks.
	Metadata map[string]string
}

// PluginV1 is the interface every Enclave plugin must implement.
// Exported symbol name in the .so file must be "EnclavePlugin" of type PluginV1.
type PluginV1 interface {
	// Name returns the human-readable plugin identifier.
	Name() string

	// APIVersion must return exactly PluginAPIVersion.
	// A mismatch causes the plugin to be rejected at load time.
	APIVersion() string

	// Init is called once after the plugin is loaded.
	// Return an error to abort loading.
	Init(cfg map[string]string) error

	// Hooks returns the named hooks this plugin subscribes to.
	// Supported hook names:
	//   OnEnvironmentCreate, OnEnvironmentDelete,
	//   OnDeploy, OnPromote
	Hooks() map[string]HookFunc

	// Shutdown is called when Enclave exits cleanly.
	Shutdown() error
}
