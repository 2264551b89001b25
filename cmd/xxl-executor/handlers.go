package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	executor "github.com/jdziat/xxljob-executor"
)

// registerDemoHandlers installs the sample handlers the coordinator's demo
// jobs refer to.
func registerDemoHandlers(c *executor.Client) error {
	handlers := map[string]executor.Variant{
		"demoJobHandler":     executor.Cooperative(executor.HandlerFunc(demoJob)),
		"shardingJobHandler": executor.Cooperative(executor.HandlerFunc(shardingJob)),
		"commandJobHandler":  executor.ThreadPerCall(executor.HandlerFunc(commandJob)),
	}
	for name, v := range handlers {
		if err := c.Register(name, v); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func demoJob(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
	slog.Info("demo job started", "job_id", tc.JobID, "log_id", tc.LogID, "param", tc.Param)
	for step := 0; step < 5; step++ {
		tc.Log("step %d", step)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	tc.Success("demo job done")
	return tc, nil
}

func shardingJob(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
	tc.Log("shard %d of %d", tc.ShardIndex, tc.ShardTotal)
	tc.Success(fmt.Sprintf("shard %d/%d", tc.ShardIndex, tc.ShardTotal))
	return tc, nil
}

// commandJob runs the trigger parameter as a shell command on its own thread.
func commandJob(ctx context.Context, tc *executor.TriggerContext) (*executor.TriggerContext, error) {
	if tc.Param == "" {
		tc.Fail("command is empty")
		return tc, nil
	}
	out, err := exec.CommandContext(ctx, "sh", "-c", tc.Param).CombinedOutput()
	if len(out) > 0 {
		tc.Log("%s", out)
	}
	if err != nil {
		return nil, err
	}
	tc.Success("exit 0")
	return tc, nil
}
