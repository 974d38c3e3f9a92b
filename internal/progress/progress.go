// Package progress implements the Progress Channel: a
// single-producer, multiple-consumer stream of tagged events describing
// where a research run currently is. Emission never blocks the pipeline —
// a slow or absent consumer drops events rather than stalling a phase.
package progress

import "log/slog"

// Kind tags each progress event with the stage it describes.
type Kind string

const (
	KindPlanning            Kind = "planning"
	KindPlanApproved        Kind = "plan_approved"
	KindDispatchingWorkers  Kind = "dispatching_workers"
	KindWorkerDone          Kind = "worker_done"
	KindSupervisorUpdate    Kind = "supervisor_update"
	KindCombining           Kind = "combining"
	KindDebate              Kind = "debate"
	KindRefining            Kind = "refining"
	KindWriting             Kind = "writing"
	KindFinalising          Kind = "finalising"
	KindDone                Kind = "done"
)

// Event is one point-in-time update about a research run.
type Event struct {
	Kind      Kind
	Iteration int    // meaningful for planning/refining/writing
	Round     int    // meaningful for debate
	Count     int    // meaningful for dispatching_workers
	Role      string // meaningful for worker_done
	Detail    string
}

// Channel is the single-producer multi-consumer progress stream for one
// research session. The zero value is not usable; construct with New.
type Channel struct {
	subscribers []chan<- Event
}

// New builds an empty progress Channel.
func New() *Channel {
	return &Channel{}
}

// Subscribe registers a consumer channel. Registration is not safe for
// concurrent use with Emit — subscribe every consumer before the research
// run starts.
func (c *Channel) Subscribe(ch chan<- Event) {
	c.subscribers = append(c.subscribers, ch)
}

// Emit sends ev to every subscriber without blocking. A subscriber whose
// buffer is full simply misses the event.
func (c *Channel) Emit(ev Event) {
	for _, sub := range c.subscribers {
		select {
		case sub <- ev:
		default:
			slog.Debug("progress event dropped, subscriber not ready", "kind", ev.Kind)
		}
	}
}
