package generator

import (
	"context"
	"time"
)

// LLMClient 抽象多模态大模型后端，便于替换/Mock。
// 实现方返回 error 表示传输或后端失败，由 Gateway 统一转换为 error 标记。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// OpenRouter 统计用请求头。
	Referer  string
	AppTitle string
	// 0 表示不设置超时、不重试。
	Timeout    time.Duration
	MaxRetries int
}
