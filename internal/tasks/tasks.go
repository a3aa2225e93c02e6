package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeExpirySweep = "sweep:expired" // 清理过期房间和在线记录
)

// ExpirySweepPayload 是清理任务的数据。周期任务不携带参数，
// Reason 只用于日志区分手动触发和定时触发。
type ExpirySweepPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewExpirySweepTask 创建清理任务。
// 多个进程在同一周期内入队时，Unique 保证只执行一次。
func NewExpirySweepTask(reason string, period time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ExpirySweepPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue("low"), asynq.MaxRetry(0)}
	if period > 0 {
		opts = append(opts, asynq.Unique(period), asynq.Timeout(period))
	}
	return asynq.NewTask(TypeExpirySweep, payload, opts...), nil
}
