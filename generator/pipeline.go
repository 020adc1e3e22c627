package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"xhs_copycat/metrics"
)

// State 流水线状态。
type State int

const (
	StateIdle State = iota
	StateAnalyzingParallel
	StateStrategizing
	StateTitlesGenerated
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzingParallel:
		return "analyzing_parallel"
	case StateStrategizing:
		return "strategizing"
	case StateTitlesGenerated:
		return "titles_generated"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Progress 每次状态变化时推送给调用方。
type Progress struct {
	RunID   string    `json:"run_id"`
	State   State     `json:"state"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Result 一次运行的全部产物，原始文本与解析值都保留。
type Result struct {
	RunID         string                   `json:"run_id"`
	State         State                    `json:"state"`
	Product       AnalysisResult           `json:"product_analysis"`
	Text          AnalysisResult           `json:"text_analysis"`
	Reviews       AnalysisResult           `json:"review_analysis"`
	Posts         AnalysisResult           `json:"post_analysis"`
	Strategy      Artifact[StrategyReport] `json:"strategy"`
	Titles        Artifact[TitleBatch]     `json:"titles"`
	SelectedTitle string                   `json:"selected_title"`
	Copy          Artifact[CopyResult]     `json:"copy"`
	Warnings      []string                 `json:"warnings"`
	Error         string                   `json:"error,omitempty"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
}

// Validate 检查必填输入：产品名称、产品图、至少一张对标笔记截图。
// 评论截图可选，空图在分析阶段丢弃。
func Validate(in Input) *ValidationError {
	if strings.TrimSpace(in.Product.Name) == "" {
		return &ValidationError{Field: "product.name", Message: "请填写产品名称"}
	}
	if len(in.Product.Image.Data) == 0 {
		return &ValidationError{Field: "product.image", Message: "请上传产品图片"}
	}
	if len(in.Posts) == 0 {
		return &ValidationError{Field: "posts", Message: "请至少上传一张对标笔记截图"}
	}
	for i, p := range in.Posts {
		if len(p.Data) == 0 {
			return &ValidationError{Field: fmt.Sprintf("posts[%d]", i), Message: "截图内容为空"}
		}
	}
	return nil
}

// Pipeline 编排：四路并行分析 → 策略 → 标题 → 正文。
type Pipeline struct {
	agent      *Agent
	onProgress func(Progress)
	log        zerolog.Logger
	metrics    *metrics.Registry
}

func NewPipeline(agent *Agent, log zerolog.Logger, reg *metrics.Registry) *Pipeline {
	return &Pipeline{agent: agent, log: log, metrics: reg}
}

// SetProgressCallback 注册进度回调，回调在调用 Run 的 goroutine 上执行。
func (p *Pipeline) SetProgressCallback(fn func(Progress)) { p.onProgress = fn }

func (p *Pipeline) Agent() *Agent { return p.agent }

// Run 执行完整流水线。校验失败返回 *ValidationError 且不产生 Result；
// 致命错误返回 Failed 状态的 Result 以及包装 ErrFatal 的 error。
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if verr := Validate(in); verr != nil {
		return nil, verr
	}

	res := &Result{RunID: uuid.NewString(), State: StateIdle, Warnings: []string{}, StartedAt: time.Now()}
	log := p.log.With().Str("run_id", res.RunID).Logger()

	if strings.TrimSpace(in.Corpus.Titles) == "" && strings.TrimSpace(in.Corpus.Keywords) == "" {
		p.warn(res, &log, "未提供爆款标题和搜索词，文本挖掘结果可能不准确")
	}

	p.transition(res, &log, StateAnalyzingParallel, "正在并行分析产品、文本、评论与竞品…")
	if err := p.analyze(ctx, in, res); err != nil {
		return p.fail(ctx, res, &log, err)
	}
	for _, a := range []AnalysisResult{res.Product, res.Text, res.Posts} {
		if a.Failed() {
			p.warn(res, &log, fmt.Sprintf("%s失败: %s", a.Kind.Label(), a.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, res, &log, fatalf("canceled: %v", err))
	}
	p.transition(res, &log, StateStrategizing, "正在生成深度策略报告…")
	strategy, err := p.agent.GenerateStrategy(ctx, res.Product, res.Text, res.Reviews, res.Posts)
	res.Strategy = strategy
	if err != nil {
		return p.fail(ctx, res, &log, err)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, res, &log, fatalf("canceled: %v", err))
	}
	titles, err := p.agent.GenerateTitles(ctx, strategy.Raw)
	res.Titles = titles
	if err != nil {
		return p.fail(ctx, res, &log, err)
	}
	res.SelectedTitle = titles.Value.First()
	if res.SelectedTitle == FallbackTitle {
		log.Warn().Msg("no usable title, falling back to default")
	}
	p.transition(res, &log, StateTitlesGenerated, "标题已生成，正在撰写正文…")

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, res, &log, fatalf("canceled: %v", err))
	}
	cp, err := p.agent.GenerateCopy(ctx, strategy.Raw, res.SelectedTitle)
	res.Copy = cp
	if err != nil {
		return p.fail(ctx, res, &log, err)
	}

	res.FinishedAt = time.Now()
	p.transition(res, &log, StateComplete, "生成完成")
	p.metrics.Inc(ctx, metrics.PipelineRuns, map[string]string{"state": StateComplete.String()}, 1)
	return res, nil
}

// analyze 四路分析并发执行并全部等待；每个 goroutine 只写自己的变量。
func (p *Pipeline) analyze(ctx context.Context, in Input, res *Result) error {
	var product, text, reviews, posts AnalysisResult
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() (err error) {
		product, err = p.agent.AnalyzeProduct(gctx, in.Product)
		return err
	})
	g.Go(func() (err error) {
		text, err = p.agent.AnalyzeTextCorpus(gctx, in.Corpus)
		return err
	})
	g.Go(func() (err error) {
		reviews, err = p.agent.AnalyzeReviews(gctx, in.Reviews)
		return err
	})
	g.Go(func() (err error) {
		posts, err = p.agent.AnalyzePosts(gctx, in.Posts)
		return err
	})
	err := g.Wait()
	res.Product, res.Text, res.Reviews, res.Posts = product, text, reviews, posts
	return err
}

func (p *Pipeline) transition(res *Result, log *zerolog.Logger, s State, msg string) {
	res.State = s
	log.Info().Str("state", s.String()).Msg(msg)
	if p.onProgress != nil {
		p.onProgress(Progress{RunID: res.RunID, State: s, Message: msg, At: time.Now()})
	}
}

func (p *Pipeline) warn(res *Result, log *zerolog.Logger, msg string) {
	res.Warnings = append(res.Warnings, msg)
	log.Warn().Msg(msg)
}

func (p *Pipeline) fail(ctx context.Context, res *Result, log *zerolog.Logger, err error) (*Result, error) {
	res.Error = err.Error()
	res.FinishedAt = time.Now()
	log.Error().Err(err).Str("after", res.State.String()).Msg("pipeline failed")
	p.transition(res, log, StateFailed, "生成失败: "+err.Error())
	p.metrics.Inc(context.WithoutCancel(ctx), metrics.PipelineRuns, map[string]string{"state": StateFailed.String()}, 1)
	return res, err
}
