package generator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"xhs_copycat/metrics"
)

func newTestAgent(t *testing.T, llm LLMClient, opts ...Option) *Agent {
	t.Helper()
	a, err := NewAgent(llm, opts...)
	require.NoError(t, err)
	return a
}

func TestNewAgentRequiresLLM(t *testing.T) {
	_, err := NewAgent(nil)
	require.Error(t, err)
}

func TestAnalyzeReviewsWithoutImagesSkipsModel(t *testing.T) {
	llm := newScriptedLLM()
	a := newTestAgent(t, llm)

	res, err := a.AnalyzeReviews(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, llm.totalCalls())
	require.Equal(t, KindReviews, res.Kind)
	require.Equal(t, NoReviewsMessage, gjson.Get(res.Raw, "error").String())
	require.Equal(t, "无评论数据", gjson.Get(res.Raw, "review_pain_points").String())
	require.True(t, res.Failed())
}

func TestAnalyzeReviewsWithImages(t *testing.T) {
	llm := newScriptedLLM()
	a := newTestAgent(t, llm)

	res, err := a.AnalyzeReviews(context.Background(), []Image{testImage("r1.png"), testImage("r2.png")})
	require.NoError(t, err)
	require.Equal(t, 1, llm.callCount(TaskReviews))
	require.Len(t, llm.lastPrompt(TaskReviews).Images(), 2)
	require.False(t, res.Failed())
	require.Equal(t, []string{"做工扎实", "发货快"}, res.Review.Praises)
}

func TestAnalyzeTextCorpusRunsWhenEmpty(t *testing.T) {
	llm := newScriptedLLM()
	a := newTestAgent(t, llm)

	res, err := a.AnalyzeTextCorpus(context.Background(), TextCorpus{})
	require.NoError(t, err)
	require.Equal(t, 1, llm.callCount(TaskText))
	require.True(t, res.Parsed)
	require.Equal(t, "交易类", res.Text.SearchIntent)
}

func TestGenerateStrategyPassesMarkersThrough(t *testing.T) {
	llm := newScriptedLLM()
	a := newTestAgent(t, llm)

	failed := AnalysisResult{Kind: KindProduct, Raw: ErrorMarker("timeout"), Error: "timeout"}
	ok := DecodeAnalysis(KindPosts, `{"tone_style":"闺蜜"}`)
	out, err := a.GenerateStrategy(context.Background(), failed, ok, ok, ok)
	require.NoError(t, err)
	require.True(t, out.Parsed)
	require.Contains(t, llm.lastPrompt(TaskStrategy).Text(), ErrorMarker("timeout"))
	requireAllKeywordKeys(t, out.Value.KeywordLibrary)
}

func TestParseFallbackIsCounted(t *testing.T) {
	llm := newScriptedLLM()
	llm.responses[TaskTitles] = "这里只有一些文字"
	reg := metrics.NewRegistry()
	a := newTestAgent(t, llm, WithMetrics(reg), WithLogger(zerolog.Nop()))

	out, err := a.GenerateTitles(context.Background(), "{}")
	require.NoError(t, err)
	require.False(t, out.Parsed)
	require.Equal(t, FallbackTitle, out.Value.First())
	require.EqualValues(t, 1, reg.Value(metrics.Key(metrics.ParseFallbacks, map[string]string{"stage": TaskTitles})))
}

func TestCustomCatalogReachesPrompts(t *testing.T) {
	cat := DefaultCatalog()
	cat.Formulas = []TitleFormula{{Name: "自定义公式", Pattern: "数字 + 结果"}}
	llm := newScriptedLLM()
	a := newTestAgent(t, llm, WithCatalog(cat))

	_, err := a.GenerateTitles(context.Background(), "{}")
	require.NoError(t, err)
	text := llm.lastPrompt(TaskTitles).Text()
	require.Contains(t, text, "自定义公式: 数字 + 结果")
	require.NotContains(t, text, DefaultCatalog().Formulas[0].Pattern)
}
