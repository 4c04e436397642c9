package engine

import (
	"context"
)

// 任务事件类型。单个任务的顺序保证：started 先于所有 progress/batch_* 事件，
// 之后恰好一个收尾事件（completed / paused / cancelled / error）。
const (
	EventTypeStarted        = "started"
	EventTypeProgress       = "progress"
	EventTypeBatchStarted   = "batch_started"
	EventTypeBatchCompleted = "batch_completed"
	EventTypeBatchProgress  = "batch_progress"
	EventTypeBatchError     = "batch_error"
	EventTypeIssueFound     = "security_issue_found"
	EventTypeCompleted      = "completed"
	EventTypePaused         = "paused"
	EventTypeCancelled      = "cancelled"
	EventTypeError          = "error"
)

// EventPublisher 事件广播抽象，解耦引擎与具体实时传输。
// 投递是 at-most-once、尽力而为的；任务状态以 status 查询为准。
type EventPublisher interface {
	Publish(ctx context.Context, jobID, targetID int64, eventType string, payload interface{}) error
}
