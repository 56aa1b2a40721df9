package exception

import "errors"

// Queue errors
var (
	ErrQueueFull   = errors.New("order: queue full")
	ErrQueueClosed = errors.New("order: queue closed")
)

// Execution errors
var (
	ErrInvalidOrder         = errors.New("order: invalid order")
	ErrInvalidSequence      = errors.New("execution: invalid sequence")
	ErrAlreadyExecuting     = errors.New("execution: already executing")
	ErrInvalidLegParameters = errors.New("execution: invalid leg parameters")
	ErrInvalidTransition    = errors.New("execution: invalid state transition")
	ErrEngineStopped        = errors.New("execution: engine stopped")
	ErrRiskRejected         = errors.New("risk: order rejected")
	ErrStrategyNotAllowed   = errors.New("risk: strategy disabled by drawdown")
)
