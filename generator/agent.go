package generator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"xhs_copycat/metrics"
)

// NoReviewsMessage 未上传评论截图时评论分析直接返回的错误信息。
const NoReviewsMessage = "no review images provided"

// Agent 负责各阶段：构造 prompt → 调用 Gateway → 容错解析。
// 除致命错误外，方法总是返回一个可用的结果。
type Agent struct {
	gw      *Gateway
	catalog Catalog
	log     zerolog.Logger
	metrics *metrics.Registry
}

type Option func(*Agent)

// WithCatalog 替换内置参考表。
func WithCatalog(c Catalog) Option { return func(a *Agent) { a.catalog = c } }

func WithLogger(l zerolog.Logger) Option { return func(a *Agent) { a.log = l } }

func WithMetrics(r *metrics.Registry) Option { return func(a *Agent) { a.metrics = r } }

func NewAgent(llm LLMClient, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{catalog: DefaultCatalog(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	a.gw = NewGateway(llm, a.log, a.metrics)
	return a, nil
}

// Catalog returns the reference tables injected into the prompts.
func (a *Agent) Catalog() Catalog { return a.catalog }

func (a *Agent) AnalyzeProduct(ctx context.Context, p ProductFacts) (AnalysisResult, error) {
	return a.analyze(ctx, KindProduct, BuildProductPrompt(p))
}

// AnalyzeTextCorpus 语料为空也照常调用，模型只能给出空洞的词库。
func (a *Agent) AnalyzeTextCorpus(ctx context.Context, c TextCorpus) (AnalysisResult, error) {
	return a.analyze(ctx, KindText, BuildTextPrompt(c, a.catalog.Keywords))
}

// AnalyzeReviews 空截图直接丢弃；没有可用截图时不调用模型，直接返回错误标记。
func (a *Agent) AnalyzeReviews(ctx context.Context, images []Image) (AnalysisResult, error) {
	images = nonEmptyImages(images)
	if len(images) == 0 {
		return DecodeAnalysis(KindReviews, noReviewsMarker()), nil
	}
	return a.analyze(ctx, KindReviews, BuildReviewPrompt(images))
}

func nonEmptyImages(images []Image) []Image {
	out := make([]Image, 0, len(images))
	for _, img := range images {
		if len(img.Data) > 0 {
			out = append(out, img)
		}
	}
	return out
}

// AnalyzePosts 非空由编排器保证。
func (a *Agent) AnalyzePosts(ctx context.Context, images []Image) (AnalysisResult, error) {
	return a.analyze(ctx, KindPosts, BuildPostPrompt(images))
}

func (a *Agent) analyze(ctx context.Context, kind AnalysisKind, prompt Prompt) (AnalysisResult, error) {
	raw, err := a.gw.Invoke(ctx, prompt)
	if err != nil {
		return AnalysisResult{Kind: kind, Raw: ErrorMarker(err.Error()), Error: err.Error()}, err
	}
	res := DecodeAnalysis(kind, raw)
	a.noteParse(ctx, prompt.Task, res.Parsed)
	return res, nil
}

// GenerateStrategy 不校验四路分析是否成功，原始文本（含 error 标记）直接交给模型。
func (a *Agent) GenerateStrategy(ctx context.Context, product, text, reviews, posts AnalysisResult) (Artifact[StrategyReport], error) {
	prompt := BuildStrategyPrompt(StrategyInput{
		Product: product.Raw,
		Text:    text.Raw,
		Reviews: reviews.Raw,
		Posts:   posts.Raw,
	}, a.catalog.Emotions)
	raw, err := a.gw.Invoke(ctx, prompt)
	if err != nil {
		return Artifact[StrategyReport]{Value: StrategyReport{KeywordLibrary: NewKeywordLibrary()}, Error: err.Error()}, err
	}
	out := DecodeStrategy(raw)
	a.noteParse(ctx, prompt.Task, out.Parsed)
	return out, nil
}

func (a *Agent) GenerateTitles(ctx context.Context, strategy string) (Artifact[TitleBatch], error) {
	prompt := BuildTitlePrompt(strategy, a.catalog.Formulas)
	raw, err := a.gw.Invoke(ctx, prompt)
	if err != nil {
		return Artifact[TitleBatch]{Value: TitleBatch{Titles: []TitleCandidate{}, SelectedFormulas: []string{}}, Error: err.Error()}, err
	}
	out := DecodeTitles(raw)
	a.noteParse(ctx, prompt.Task, out.Parsed)
	if out.Parsed && out.Error == "" && len(out.Value.Titles) != TitleBatchSize {
		a.log.Warn().Int("titles", len(out.Value.Titles)).Msgf("expected %d titles", TitleBatchSize)
	}
	return out, nil
}

func (a *Agent) GenerateCopy(ctx context.Context, strategy, title string) (Artifact[CopyResult], error) {
	prompt := BuildCopyPrompt(strategy, title)
	raw, err := a.gw.Invoke(ctx, prompt)
	if err != nil {
		return Artifact[CopyResult]{Error: err.Error()}, err
	}
	out := DecodeCopy(raw)
	a.noteParse(ctx, prompt.Task, out.Parsed)
	return out, nil
}

func (a *Agent) noteParse(ctx context.Context, task string, parsed bool) {
	if parsed {
		return
	}
	a.metrics.Inc(ctx, metrics.ParseFallbacks, map[string]string{"stage": task}, 1)
	a.log.Debug().Str("task", task).Msg("model output is not a JSON object, using defaults")
}

func noReviewsMarker() string {
	out, err := sjson.Set(ErrorMarker(NoReviewsMessage), "review_pain_points", "无评论数据")
	if err != nil {
		return ErrorMarker(NoReviewsMessage)
	}
	return out
}
