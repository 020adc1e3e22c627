package generator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"xhs_copycat/metrics"
)

func lampInput() Input {
	return Input{
		Product: ProductFacts{Name: "儿童护眼灯", Price: "299元", Image: testImage("lamp.png")},
		Corpus:  TextCorpus{Titles: "护眼灯真的有用吗\n学生党护眼灯推荐", Keywords: "护眼灯 儿童 学习"},
		Posts:   []Image{testImage("post1.png"), testImage("post2.png")},
	}
}

func newTestPipeline(t *testing.T, llm LLMClient, reg *metrics.Registry) *Pipeline {
	t.Helper()
	a := newTestAgent(t, llm, WithMetrics(reg))
	return NewPipeline(a, zerolog.Nop(), reg)
}

func TestRunLampScenario(t *testing.T) {
	llm := newScriptedLLM()
	reg := metrics.NewRegistry()
	p := newTestPipeline(t, llm, reg)

	var states []State
	p.SetProgressCallback(func(pr Progress) { states = append(states, pr.State) })

	res, err := p.Run(context.Background(), lampInput())
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)
	require.Equal(t, []State{StateAnalyzingParallel, StateStrategizing, StateTitlesGenerated, StateComplete}, states)
	require.NotEmpty(t, res.RunID)

	// 没有评论截图：评论分析为错误标记，但不计入警告
	require.Zero(t, llm.callCount(TaskReviews))
	require.Equal(t, NoReviewsMessage, res.Reviews.Error)
	require.Empty(t, res.Warnings)

	require.Len(t, res.Titles.Value.Titles, TitleBatchSize)
	require.Equal(t, res.Titles.Value.Titles[0].Title, res.SelectedTitle)
	require.NotEmpty(t, res.Copy.Value.Content)
	require.Contains(t, llm.lastPrompt(TaskCopy).Text(), res.SelectedTitle)
	require.True(t, res.Strategy.Parsed)
	require.Equal(t, "小巧省心，一键搞定", res.Strategy.Value.CoreSellingPoint)

	for _, task := range []string{TaskProduct, TaskText, TaskPosts, TaskStrategy, TaskTitles, TaskCopy} {
		require.Equal(t, 1, llm.callCount(task), task)
		require.EqualValues(t, 1, reg.Value(metrics.Key(metrics.LLMCalls, map[string]string{"task": task})), task)
	}
	require.EqualValues(t, 1, reg.Value(metrics.Key(metrics.PipelineRuns, map[string]string{"state": "complete"})))

	data, err := json.Marshal(res)
	require.NoError(t, err)
	require.Equal(t, "complete", gjson.GetBytes(data, "state").String())
	for _, key := range KeywordKeys {
		require.True(t, gjson.GetBytes(data, "strategy.value.keyword_library."+key).IsArray(), key)
	}
}

func TestRunDegradesWhenEveryCallFails(t *testing.T) {
	llm := newScriptedLLM()
	llm.errAll = errors.New("timeout")
	p := newTestPipeline(t, llm, nil)

	in := lampInput()
	in.Reviews = []Image{testImage("r1.png")}
	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)

	for _, a := range []AnalysisResult{res.Product, res.Text, res.Reviews, res.Posts} {
		require.Equal(t, "timeout", a.Error)
	}
	// 评论失败不产生警告
	require.Len(t, res.Warnings, 3)
	require.Equal(t, "timeout", res.Strategy.Error)
	requireAllKeywordKeys(t, res.Strategy.Value.KeywordLibrary)
	require.Equal(t, FallbackTitle, res.SelectedTitle)
	require.Equal(t, 1, llm.callCount(TaskCopy))
	require.Contains(t, llm.lastPrompt(TaskCopy).Text(), FallbackTitle)
	require.Equal(t, "timeout", res.Copy.Error)
}

func TestRunInvalidTitlesUsesFallbackTitle(t *testing.T) {
	llm := newScriptedLLM()
	llm.responses[TaskTitles] = `{"generated_titles": [{"title": "没写完`
	p := newTestPipeline(t, llm, nil)

	res, err := p.Run(context.Background(), lampInput())
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)
	require.False(t, res.Titles.Parsed)
	require.Equal(t, FallbackTitle, res.SelectedTitle)
	require.Equal(t, 1, llm.callCount(TaskCopy))
	require.Contains(t, llm.lastPrompt(TaskCopy).Text(), FallbackTitle)
}

func TestRunWarnsOnEmptyCorpus(t *testing.T) {
	llm := newScriptedLLM()
	p := newTestPipeline(t, llm, nil)

	in := lampInput()
	in.Corpus = TextCorpus{}
	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, 1, llm.callCount(TaskText))
}

func TestRunIgnoresBlankErrorFields(t *testing.T) {
	llm := newScriptedLLM()
	llm.responses[TaskProduct] = `{"error":"","name":"儿童护眼灯","category":"台灯"}`
	llm.responses[TaskPosts] = `{"error":false,"body_structure":"痛点开场","tone_style":"闺蜜"}`
	p := newTestPipeline(t, llm, nil)

	res, err := p.Run(context.Background(), lampInput())
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)
	require.False(t, res.Product.Failed())
	require.False(t, res.Posts.Failed())
	require.Empty(t, res.Warnings)
}

func TestRunDropsEmptyReviewImages(t *testing.T) {
	tests := []struct {
		name       string
		reviews    []Image
		wantCalls  int
		wantImages int
	}{
		{"only empty", []Image{{Name: "r1.png"}, {Name: "r2.png"}}, 0, 0},
		{"mixed", []Image{{Name: "r1.png"}, testImage("r2.png"), {Name: "r3.png"}}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newScriptedLLM()
			p := newTestPipeline(t, llm, nil)
			in := lampInput()
			in.Reviews = tt.reviews

			res, err := p.Run(context.Background(), in)
			require.NoError(t, err)
			require.Equal(t, StateComplete, res.State)
			require.Empty(t, res.Warnings)
			require.Equal(t, tt.wantCalls, llm.callCount(TaskReviews))
			if tt.wantCalls == 0 {
				require.Equal(t, NoReviewsMessage, res.Reviews.Error)
				return
			}
			require.False(t, res.Reviews.Failed())
			require.Len(t, llm.lastPrompt(TaskReviews).Images(), tt.wantImages)
		})
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Input)
		field string
	}{
		{"missing name", func(in *Input) { in.Product.Name = "  " }, "product.name"},
		{"missing product image", func(in *Input) { in.Product.Image = Image{} }, "product.image"},
		{"no posts", func(in *Input) { in.Posts = nil }, "posts"},
		{"empty post image", func(in *Input) { in.Posts = append(in.Posts, Image{Name: "x.png"}) }, "posts[2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newScriptedLLM()
			p := newTestPipeline(t, llm, nil)
			in := lampInput()
			tt.edit(&in)

			res, err := p.Run(context.Background(), in)
			require.Nil(t, res)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
			require.Zero(t, llm.totalCalls())
		})
	}
}

func TestRunCanceledContextFails(t *testing.T) {
	llm := newScriptedLLM()
	reg := metrics.NewRegistry()
	p := newTestPipeline(t, llm, reg)

	var last State
	p.SetProgressCallback(func(pr Progress) { last = pr.State })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, lampInput())
	require.ErrorIs(t, err, ErrFatal)
	require.Equal(t, StateFailed, res.State)
	require.Equal(t, StateFailed, last)
	require.NotEmpty(t, res.Error)
	require.Zero(t, llm.callCount(TaskStrategy))
	require.EqualValues(t, 1, reg.Value(metrics.Key(metrics.PipelineRuns, map[string]string{"state": "failed"})))
}

// barrierLLM 四个分析请求必须同时在途才会放行。
type barrierLLM struct {
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (b *barrierLLM) Complete(ctx context.Context, p Prompt) (string, error) {
	switch p.Task {
	case TaskProduct, TaskText, TaskReviews, TaskPosts:
		b.mu.Lock()
		b.arrived++
		if b.arrived == 4 {
			close(b.release)
		}
		b.mu.Unlock()
		select {
		case <-b.release:
		case <-time.After(2 * time.Second):
			return "", errors.New("analysis calls were not concurrent")
		}
	}
	return MockLLM{}.Complete(ctx, p)
}

func TestRunAnalysesConcurrently(t *testing.T) {
	llm := &barrierLLM{release: make(chan struct{})}
	p := newTestPipeline(t, llm, nil)

	in := lampInput()
	in.Reviews = []Image{testImage("r1.png")}
	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	for _, a := range []AnalysisResult{res.Product, res.Text, res.Reviews, res.Posts} {
		require.False(t, a.Failed(), a.Error)
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "analyzing_parallel", StateAnalyzingParallel.String())
	require.Equal(t, "failed", StateFailed.String())
	require.Equal(t, "state(42)", State(42).String())
}

func TestStateTextRoundTrip(t *testing.T) {
	var got State
	require.NoError(t, got.UnmarshalText([]byte("titles_generated")))
	require.Equal(t, StateTitlesGenerated, got)
	require.Error(t, got.UnmarshalText([]byte("done")))
}

func TestRunMinimalLampInput(t *testing.T) {
	llm := newScriptedLLM()
	p := newTestPipeline(t, llm, nil)

	res, err := p.Run(context.Background(), Input{
		Product: ProductFacts{Name: "儿童护眼灯", Price: "299元", Image: testImage("lamp.png")},
		Posts:   []Image{testImage("post.png")},
	})
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)
	require.Equal(t, NoReviewsMessage, res.Reviews.Error)
	require.Len(t, res.Warnings, 1)

	content := res.Copy.Value.Content
	require.NotEmpty(t, content)
	require.LessOrEqual(t, len([]rune(content)), 500)
	require.Len(t, llm.lastPrompt(TaskPosts).Images(), 1)
}
