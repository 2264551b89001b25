package core

import "time"

// Event is the interface for all runtime events.
type Event interface {
	eventMarker()
}

// TriggerStarted is emitted when a trigger is dispatched to its handler.
type TriggerStarted struct {
	Handler   string
	JobID     int64
	LogID     int64
	Mode      ExecMode
	Timestamp time.Time
}

func (*TriggerStarted) eventMarker() {}

// TriggerCompleted is emitted when a handler run reports success.
type TriggerCompleted struct {
	Handler   string
	JobID     int64
	LogID     int64
	Duration  time.Duration
	Timestamp time.Time
}

func (*TriggerCompleted) eventMarker() {}

// TriggerFailed is emitted when a handler run fails or reports a non-success code.
type TriggerFailed struct {
	Handler   string
	JobID     int64
	LogID     int64
	Code      int
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

func (*TriggerFailed) eventMarker() {}

// TriggerQueued is emitted when a trigger waits behind a running one.
type TriggerQueued struct {
	Handler   string
	JobID     int64
	LogID     int64
	Depth     int
	Timestamp time.Time
}

func (*TriggerQueued) eventMarker() {}

// TriggerDiscarded is emitted when DiscardLater rejects a trigger.
type TriggerDiscarded struct {
	Handler   string
	JobID     int64
	LogID     int64
	Timestamp time.Time
}

func (*TriggerDiscarded) eventMarker() {}

// TriggerEvicted is emitted when a queued trigger is dropped from a full queue.
type TriggerEvicted struct {
	Handler   string
	JobID     int64
	LogID     int64
	Timestamp time.Time
}

func (*TriggerEvicted) eventMarker() {}

// TriggerKilled is emitted for each run or queued trigger affected by a kill.
type TriggerKilled struct {
	Handler   string
	JobID     int64
	LogID     int64
	Queued    bool
	Timestamp time.Time
}

func (*TriggerKilled) eventMarker() {}
