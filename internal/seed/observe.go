package seed

import (
	"context"
	"time"

	"estatehub/pkg/domain"
)

// Phase is a state of the loader state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWiping
	PhaseLoading
	PhaseReconciling
	PhasePatching
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseWiping:
		return "Wiping"
	case PhaseLoading:
		return "Loading"
	case PhaseReconciling:
		return "Reconciling"
	case PhasePatching:
		return "Patching"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions follow p.
func (p Phase) Terminal() bool { return p == PhaseDone || p == PhaseFailed }

// Transition is one state change. Entity is set for per-type phases.
type Transition struct {
	Phase  Phase
	Entity domain.EntityType
	At     time.Time
}

func (t Transition) String() string {
	if t.Entity == "" {
		return t.Phase.String()
	}
	return t.Phase.String() + "(" + string(t.Entity) + ")"
}

// Observer receives every transition synchronously from the loader goroutine.
type Observer func(Transition)

// MetricsRecorder receives loader measurements.
type MetricsRecorder interface {
	ObservePhase(phase Phase, entity domain.EntityType, duration time.Duration)
	RecordOutcome(outcome LoadOutcome)
	RecordRegistry(entity domain.EntityType, sourceKeys int)
}

// Tracer starts spans around loader phases.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan ends a span started by a Tracer.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) ObservePhase(Phase, domain.EntityType, time.Duration) {}
func (noopMetrics) RecordOutcome(LoadOutcome)                            {}
func (noopMetrics) RecordRegistry(domain.EntityType, int)                {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
