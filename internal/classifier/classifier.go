package classifier

import (
	"context"
	"strings"

	"github.com/opensoc/soc_log_server/internal/model"
)

// Finding 分类器对单行日志的结论
type Finding struct {
	HasIssue    bool    `json:"has_issue"`
	Severity    string  `json:"severity,omitempty"` // low / medium / high / critical
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// LineContext 分类时附带的目标上下文
type LineContext struct {
	SourceSystem string
	Filename     string
	LineNumber   int64
}

// Classifier 行级安全分类器。调用必须可安全重试；
// 返回的任何错误都按瞬时错误处理（单行隔离，不导致任务失败）。
type Classifier interface {
	Classify(ctx context.Context, content string, lineCtx LineContext) (*Finding, error)
}

// NormalizeSeverity 将分类器输出收敛到合法级别，未知值按 medium 处理
func NormalizeSeverity(severity string) string {
	severity = strings.ToLower(severity)
	switch severity {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
		return severity
	}
	return model.SeverityMedium
}
