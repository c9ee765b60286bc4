package streams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GroupStatus captures backlog and pending state for a consumer group.
// Backlog is -1 when the group does not exist on the stream.
type GroupStatus struct {
	Consumers  int64         `json:"consumers"`
	Pending    int64         `json:"pending"`
	Backlog    int64         `json:"backlog"`
	OldestIdle time.Duration `json:"oldest_idle"`
}

// InspectGroup reads consumer group state for the job stream. The ops
// endpoint surfaces this next to pipeline metrics.
func InspectGroup(ctx context.Context, client *redis.Client, stream, group string) (GroupStatus, error) {
	if client == nil || stream == "" || group == "" {
		return GroupStatus{}, fmt.Errorf("client, stream and group are required")
	}

	groups, err := client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return GroupStatus{}, fmt.Errorf("xinfo groups: %w", err)
	}

	st := GroupStatus{Backlog: -1}
	for _, g := range groups {
		if g.Name == group {
			st = GroupStatus{
				Consumers: int64(g.Consumers),
				Pending:   g.Pending,
				Backlog:   g.Lag,
			}
			break
		}
	}
	if st.Pending == 0 {
		return st, nil
	}

	oldest, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil && err != redis.Nil {
		return GroupStatus{}, fmt.Errorf("xpending: %w", err)
	}
	if len(oldest) > 0 {
		st.OldestIdle = oldest[0].Idle
	}
	return st, nil
}
