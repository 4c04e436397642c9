package dto

// StartAnalysisRequest 启动批量分析请求
type StartAnalysisRequest struct {
	BatchSize  int  `json:"batch_size,omitempty"` // 省略时使用配置默认值
	MaxBatches *int `json:"max_batches,omitempty"`
	Force      bool `json:"force,omitempty"` // 对已完全分析的目标重新分析
}

// StartAnalysisResponse 启动批量分析响应
type StartAnalysisResponse struct {
	JobID int64 `json:"job_id"`
}

// JobStatusResponse 任务状态快照
type JobStatusResponse struct {
	JobID            int64  `json:"job_id"`
	TargetID         int64  `json:"target_id"`
	Status           string `json:"status"`
	BatchSize        int    `json:"batch_size"`
	CurrentBatch     int    `json:"current_batch"`
	TotalBatches     *int   `json:"total_batches,omitempty"`
	LinesProcessed   int64  `json:"lines_processed"`
	TotalLines       *int64 `json:"total_lines,omitempty"`
	IssuesFound      int    `json:"issues_found"`
	AlertsCreated    int    `json:"alerts_created"`
	Percent          int    `json:"percent"`
	PauseRequested   bool   `json:"pause_requested"`
	CancelRequested  bool   `json:"cancel_requested"`
	ErrorMessage     string `json:"error_message,omitempty"`
	StartTime        string `json:"start_time,omitempty"`
	EndTime          string `json:"end_time,omitempty"`
	EstimatedEndTime string `json:"estimated_end_time,omitempty"`
}

// JobListItem 任务历史列表项
type JobListItem struct {
	JobID          int64  `json:"job_id"`
	TargetID       int64  `json:"target_id"`
	Status         string `json:"status"`
	BatchSize      int    `json:"batch_size"`
	LinesProcessed int64  `json:"lines_processed"`
	IssuesFound    int    `json:"issues_found"`
	AlertsCreated  int    `json:"alerts_created"`
	CreatedAt      string `json:"created_at"`
	EndTime        string `json:"end_time,omitempty"`
}

// TargetStatsResponse 目标文件的分析统计
type TargetStatsResponse struct {
	TargetID          int64            `json:"target_id"`
	TotalLines        int64            `json:"total_lines"`
	AnalyzedLines     int64            `json:"analyzed_lines"`
	SecurityIssues    int64            `json:"security_issues"`
	AlertsCreated     int64            `json:"alerts_created"`
	SeverityBreakdown map[string]int64 `json:"severity_breakdown"`
	AnalysisProgress  int              `json:"analysis_progress"` // 百分比
	QueueDepth        int64            `json:"queue_depth"`
}
