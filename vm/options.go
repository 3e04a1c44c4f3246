package vm

import "github.com/deepnoodle-ai/lift/host"

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithGlobals provides global variables with the given names. Values are
// converted to runtime values; a *host.Routine becomes a callable Function.
func WithGlobals(globals map[string]any) Option {
	return func(vm *VirtualMachine) {
		for name, value := range globals {
			vm.globals[name] = normalize(value)
		}
	}
}

// WithHelpers adds or replaces runtime helpers.
func WithHelpers(helpers map[host.Helper]HelperFunc) Option {
	return func(vm *VirtualMachine) {
		for name, fn := range helpers {
			vm.helpers[name] = fn
		}
	}
}

// WithMaxSteps limits the number of operations one Run may execute. Zero
// means no limit.
func WithMaxSteps(n int) Option {
	return func(vm *VirtualMachine) {
		vm.maxSteps = n
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution, in operations. A value of 0 disables checking.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithObserver sets an observer for VM execution events.
// Observer methods are called synchronously during execution. Returning
// false from any observer method halts execution immediately.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}
