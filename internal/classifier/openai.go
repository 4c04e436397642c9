package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	// 429 限流时的最大重试次数与退避参数
	maxRateLimitRetries = 3
	baseBackoff         = 2 * time.Second
	maxBackoff          = 16 * time.Second
)

var ErrAPIKeyNotSet = errors.New("classifier API key not set")

const systemPrompt = `You are a SOC log security analyst. Analyze a single log line and decide whether it indicates a security issue (brute force, injection, malware, privilege escalation, data exfiltration, policy violation, etc).
Respond with a JSON object only:
{"has_issue": bool, "severity": "low"|"medium"|"high"|"critical", "type": string, "description": string, "confidence": number between 0 and 1}
If there is no security issue, set has_issue to false and omit severity/type/description.`

// OpenAIClassifier 基于 Chat Completions 的行级分类器
type OpenAIClassifier struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIClassifier(apiKey, model string, timeout time.Duration) (*OpenAIClassifier, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIClassifier{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

// Classify 对单行日志分类。超时与 API 错误作为瞬时错误返回，由调用方隔离。
func (c *OpenAIClassifier) Classify(ctx context.Context, content string, lineCtx LineContext) (*Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Source: %s\nFile: %s\nLine %d:\n%s",
		lineCtx.SourceSystem, lineCtx.Filename, lineCtx.LineNumber, content)

	raw, err := c.completeWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseFinding(raw)
}

// completeWithRetry 限流时指数退避重试
func (c *OpenAIClassifier) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(0),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{
					Type: "json_object",
				},
			},
		})
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("classifier API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", errors.New("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("rate limit retries exceeded: %w", lastErr)
}

func parseFinding(raw string) (*Finding, error) {
	var finding Finding
	if err := json.Unmarshal([]byte(raw), &finding); err != nil {
		return nil, fmt.Errorf("invalid classifier response: %w", err)
	}

	if finding.HasIssue {
		finding.Severity = NormalizeSeverity(finding.Severity)
		if finding.Type == "" {
			finding.Type = "suspicious_activity"
		}
	}
	if finding.Confidence < 0 {
		finding.Confidence = 0
	}
	if finding.Confidence > 1 {
		finding.Confidence = 1
	}

	return &finding, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

var _ Classifier = (*OpenAIClassifier)(nil)
