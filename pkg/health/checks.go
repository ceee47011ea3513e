package health

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Facet-Engine/pkg/resilience"
)

// Pinger is a dependency that can be probed with a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes p within timeout. A failed optional dependency reports
// degraded instead of down; a nil optional one reports "not configured".
func PingCheck(name string, p Pinger, timeout time.Duration, optional bool) Check {
	failed := StatusDown
	if optional {
		failed = StatusDegraded
	}
	return func(ctx context.Context) ComponentHealth {
		if p == nil {
			return ComponentHealth{Status: failed, Message: "not configured"}
		}
		err := resilience.WithTimeout(ctx, timeout, name, p.Ping)
		if err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// SnapshotCheck reports down until an index snapshot with at least one
// segment is loaded. docs reports live documents and loaded segments.
func SnapshotCheck(docs func() (live int, segments int)) Check {
	return func(ctx context.Context) ComponentHealth {
		live, segments := docs()
		if segments == 0 {
			return ComponentHealth{Status: StatusDegraded, Message: "no segments loaded"}
		}
		return ComponentHealth{
			Status:  StatusUp,
			Message: fmt.Sprintf("%d docs in %d segments", live, segments),
		}
	}
}
