package vm

import "github.com/deepnoodle-ai/lift/host"

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every operation.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N operations.
	StepSampled

	// StepOnOrigin calls OnStep when execution moves to the operations of a
	// different guest instruction.
	StepOnOrigin
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of operations between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks.
	ObserveReturns bool
}

// NewObserverConfig creates a config with safe defaults.
// ObserveCalls and ObserveReturns default to true.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives VM execution events. Implementations can embed
// NoOpObserver for methods they don't need.
type Observer interface {
	// Config returns the observer's configuration.
	// Called once when the VM is created.
	Config() ObserverConfig

	// OnStep is called based on the StepMode in the observer's config.
	// Returns false to halt execution immediately.
	OnStep(event StepEvent) bool

	// OnCall is called when a routine or builtin is invoked.
	OnCall(event CallEvent) bool

	// OnReturn is called when a routine or builtin returns normally.
	OnReturn(event ReturnEvent) bool
}

// StepEvent contains information about a single operation step.
type StepEvent struct {
	// IP is the index of the operation within its routine.
	IP int

	// Operation is the operation about to execute.
	Operation host.Operation

	// Origin is the guest offset the operation was emitted for.
	Origin int

	// StackDepth is the current depth of the operand stack.
	StackDepth int

	// FrameDepth is the current depth of the call stack.
	FrameDepth int
}

// CallEvent contains information about a call.
type CallEvent struct {
	FunctionName string
	ArgCount     int
	// FrameDepth is the call stack depth before the call.
	FrameDepth int
}

// ReturnEvent contains information about a return.
type ReturnEvent struct {
	FunctionName string
	FrameDepth   int
}

// NoOpObserver is an Observer implementation that does nothing.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

// Ensure NoOpObserver implements Observer.
var _ Observer = NoOpObserver{}

func (vm *VirtualMachine) notifyStep(f *frame, ip int, o host.Operation) bool {
	if vm.observer == nil {
		return true
	}
	cfg := vm.observerConfig
	origin := f.origin(ip)
	switch cfg.StepMode {
	case StepNone:
		return true
	case StepSampled:
		if vm.steps%cfg.SampleInterval != 0 {
			return true
		}
	case StepOnOrigin:
		if origin == vm.lastOrigin {
			return true
		}
		vm.lastOrigin = origin
	}
	return vm.observer.OnStep(StepEvent{
		IP:         ip,
		Operation:  o,
		Origin:     origin,
		StackDepth: len(f.stack),
		FrameDepth: vm.frameDepth,
	})
}

func (vm *VirtualMachine) notifyCall(name string, argc int) bool {
	if vm.observer == nil || !vm.observerConfig.ObserveCalls {
		return true
	}
	return vm.observer.OnCall(CallEvent{FunctionName: name, ArgCount: argc, FrameDepth: vm.frameDepth})
}

func (vm *VirtualMachine) notifyReturn(name string) bool {
	if vm.observer == nil || !vm.observerConfig.ObserveReturns {
		return true
	}
	return vm.observer.OnReturn(ReturnEvent{FunctionName: name, FrameDepth: vm.frameDepth})
}
