package generator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"xhs_copycat/metrics"
)

// Gateway 是所有阶段访问模型的唯一入口。
// 后端失败不会以 error 返回，而是变成 {"error": "..."} 文本，下游统一按 JSON 判断。
type Gateway struct {
	llm     LLMClient
	log     zerolog.Logger
	metrics *metrics.Registry
}

func NewGateway(llm LLMClient, log zerolog.Logger, reg *metrics.Registry) *Gateway {
	return &Gateway{llm: llm, log: log, metrics: reg}
}

// Invoke sends one request and returns the model text with code fences removed.
// The returned error is non-nil only for prompts that cannot become a request; it wraps ErrFatal.
func (g *Gateway) Invoke(ctx context.Context, p Prompt) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fatalf("%s: %v", p.Task, err)
	}

	labels := map[string]string{"task": p.Task}
	g.metrics.Inc(ctx, metrics.LLMCalls, labels, 1)

	start := time.Now()
	raw, err := g.llm.Complete(ctx, p)
	elapsed := time.Since(start)
	if err != nil {
		g.metrics.Inc(ctx, metrics.LLMErrors, labels, 1)
		g.log.Warn().Err(err).Str("task", p.Task).Dur("elapsed", elapsed).Msg("model call failed")
		return ErrorMarker(err.Error()), nil
	}

	text := strings.TrimSpace(StripFence(raw))
	if text == "" {
		g.metrics.Inc(ctx, metrics.LLMErrors, labels, 1)
		g.log.Warn().Str("task", p.Task).Dur("elapsed", elapsed).Msg("model returned empty text")
		return ErrorMarker("empty response from model"), nil
	}

	g.log.Debug().
		Str("task", p.Task).
		Int("parts", len(p.Parts)).
		Int("images", len(p.Images())).
		Int("bytes", len(text)).
		Dur("elapsed", elapsed).
		Msg("model call done")
	return text, nil
}

// StripFence removes ```json / ``` fence markers when the text starts with a fence.
// Applying it twice gives the same result as applying it once.
func StripFence(s string) string {
	if !strings.HasPrefix(strings.TrimSpace(s), "```") {
		return s
	}
	out := strings.ReplaceAll(s, "```json", "")
	out = strings.ReplaceAll(out, "```JSON", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

// ErrorMarker 构造 {"error": msg}。
func ErrorMarker(msg string) string {
	out, err := sjson.Set("{}", "error", msg)
	if err != nil {
		return `{"error":"unknown error"}`
	}
	return out
}
