package server

import (
	"time"

	"github.com/jdziat/xxljob-executor/pkg/core"
)

// RunParam is the body of /run.
type RunParam struct {
	JobID                 int64  `json:"jobId"`
	LogID                 int64  `json:"logId"`
	ExecutorHandler       string `json:"executorHandler"`
	ExecutorParams        string `json:"executorParams"`
	ExecutorBlockStrategy string `json:"executorBlockStrategy"`
	ExecutorTimeout       int    `json:"executorTimeout"`
	LogDateTime           int64  `json:"logDateTime"`
	GlueType              string `json:"glueType"`
	GlueSource            string `json:"glueSource"`
	GlueUpdatetime        int64  `json:"glueUpdatetime"`
	BroadcastIndex        int    `json:"broadcastIndex"`
	BroadcastTotal        int    `json:"broadcastTotal"`
}

// TriggerContext builds the trigger for this request. Shard total defaults
// to 1 and unknown glue types fall back to BEAN.
func (p RunParam) TriggerContext() *core.TriggerContext {
	tc := core.NewTriggerContext(p.JobID, p.LogID)
	tc.Param = p.ExecutorParams
	tc.BlockStrategy = core.ParseBlockStrategy(p.ExecutorBlockStrategy)
	tc.GlueType, _ = core.ParseGlueType(p.GlueType)
	tc.GlueSource = p.GlueSource
	tc.GlueUpdatedAt = p.GlueUpdatetime
	tc.LogDateTime = p.LogDateTime
	if p.ExecutorTimeout > 0 {
		tc.Timeout = time.Duration(p.ExecutorTimeout) * time.Second
	}
	if p.BroadcastTotal > 0 {
		tc.ShardIndex = p.BroadcastIndex
		tc.ShardTotal = p.BroadcastTotal
	}
	return tc
}

// IdleBeatParam is the body of /idleBeat.
type IdleBeatParam struct {
	JobID int64 `json:"jobId"`
}

// KillParam is the body of /kill.
type KillParam struct {
	JobID int64 `json:"jobId"`
}

// LogParam is the body of /log.
type LogParam struct {
	LogDateTim  int64 `json:"logDateTim"`
	LogID       int64 `json:"logId"`
	FromLineNum int   `json:"fromLineNum"`
}
