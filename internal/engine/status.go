package engine

import (
	"errors"
	"fmt"

	"github.com/opensoc/soc_log_server/internal/model"
)

// TransitionEvent 状态机输入事件
type TransitionEvent string

const (
	EventStart          TransitionEvent = "start"
	EventPauseObserved  TransitionEvent = "pause_observed"  // 批边界观察到暂停标志
	EventResume         TransitionEvent = "resume"
	EventCancelObserved TransitionEvent = "cancel_observed" // 批边界观察到取消标志
	EventExhausted      TransitionEvent = "exhausted"       // 批次耗尽或达到 max_batches
	EventFatal          TransitionEvent = "fatal"
)

var ErrIllegalTransition = errors.New("illegal job status transition")

// 状态转移表。终态（cancelled/completed/error）没有出边。
var transitions = map[string]map[TransitionEvent]string{
	model.JobStatusQueued: {
		EventStart: model.JobStatusRunning,
	},
	model.JobStatusRunning: {
		EventPauseObserved:  model.JobStatusPaused,
		EventCancelObserved: model.JobStatusCancelled,
		EventExhausted:      model.JobStatusCompleted,
		EventFatal:          model.JobStatusError,
	},
	model.JobStatusPaused: {
		EventResume:         model.JobStatusQueued,
		EventCancelObserved: model.JobStatusCancelled,
		EventFatal:          model.JobStatusError,
	},
}

// Transition 纯函数：给定当前状态和事件返回下一状态。
// 决策与持久化副作用分离，持久化由 JobRepository 负责。
func Transition(status string, event TransitionEvent) (string, error) {
	next, ok := transitions[status][event]
	if !ok {
		return "", fmt.Errorf("%w: %s --%s-->", ErrIllegalTransition, status, event)
	}
	return next, nil
}

// CanPause 仅 running 任务可请求暂停
func CanPause(status string) bool {
	_, err := Transition(status, EventPauseObserved)
	return err == nil
}

// CanResume 仅 paused 任务可恢复
func CanResume(status string) bool {
	_, err := Transition(status, EventResume)
	return err == nil
}

// CanCancel running 和 paused 任务可取消
func CanCancel(status string) bool {
	_, err := Transition(status, EventCancelObserved)
	return err == nil
}
