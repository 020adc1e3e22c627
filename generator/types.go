package generator

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Image 一张用户上传的图片（商品图、对标笔记截图或评论截图）。
type Image struct {
	Name     string `json:"name,omitempty"`
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type,omitempty"`
}

// MediaType returns the declared MIME type when it is an image type, otherwise
// sniffs the bytes. Anything that does not look like an image is sent as image/jpeg.
func (i Image) MediaType() string {
	if mt := strings.TrimSpace(i.MIMEType); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if len(i.Data) == 0 {
		return "image/jpeg"
	}
	detected := mimetype.Detect(i.Data).String()
	if !strings.HasPrefix(detected, "image/") {
		return "image/jpeg"
	}
	return detected
}

// DataURI 编码为 data:<mime>;base64,... 形式，供 OpenAI 兼容接口使用。
func (i Image) DataURI() string {
	return "data:" + i.MediaType() + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ProductFacts 本品基础信息。
type ProductFacts struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Image Image  `json:"image"`
}

// TextCorpus 爆款标题与搜索词原文，截断由 prompt builder 负责。
type TextCorpus struct {
	Titles   string `json:"titles"`
	Keywords string `json:"keywords"`
}

// Input 一次流水线运行的全部输入。
type Input struct {
	Product ProductFacts `json:"product"`
	Corpus  TextCorpus   `json:"corpus"`
	Reviews []Image      `json:"reviews"`
	Posts   []Image      `json:"posts"`
}

// AnalysisKind 标识四类并行分析。
type AnalysisKind string

const (
	KindProduct AnalysisKind = "product"
	KindText    AnalysisKind = "text"
	KindReviews AnalysisKind = "reviews"
	KindPosts   AnalysisKind = "posts"
)

// Label 用于诊断信息的中文名称。
func (k AnalysisKind) Label() string {
	switch k {
	case KindProduct:
		return "产品分析"
	case KindText:
		return "文本挖掘"
	case KindReviews:
		return "评论洞察"
	case KindPosts:
		return "竞品拆解"
	default:
		return string(k)
	}
}

// ProductAnalysis 商品图 + 基础信息的分析结果。
type ProductAnalysis struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Features       []string `json:"features"`
	VisualStyle    string   `json:"visual_style"`
	TargetAudience string   `json:"target_audience"`
	SellingPoints  []string `json:"selling_points"`
}

// TextAnalysis 标题/搜索词挖掘结果。
type TextAnalysis struct {
	KeywordLibrary KeywordLibrary `json:"title_keyword_library"`
	SearchIntent   string         `json:"search_intent"`
	CorePainPoints []string       `json:"core_pain_points"`
}

// ReviewAnalysis 评论区洞察。
type ReviewAnalysis struct {
	PainPoints     []string `json:"review_pain_points"`
	Praises        []string `json:"review_praises"`
	UsageScenarios []string `json:"usage_scenarios"`
}

// PostAnalysis 对标爆款笔记拆解。
type PostAnalysis struct {
	BodyStructure     string `json:"body_structure"`
	ToneStyle         string `json:"tone_style"`
	ConversionTactics string `json:"conversion_tactics"`
	FormatSpecs       string `json:"format_specs"`
}

// AnalysisResult 是一次分析调用的结果：要么是结构化字段，要么带有 error 标记。
// Raw 始终保留，策略阶段只把它当作不透明文本使用。
type AnalysisResult struct {
	Kind    AnalysisKind     `json:"kind"`
	Raw     string           `json:"raw"`
	Parsed  bool             `json:"parsed"`
	Error   string           `json:"error,omitempty"`
	Product *ProductAnalysis `json:"product,omitempty"`
	Text    *TextAnalysis    `json:"text,omitempty"`
	Review  *ReviewAnalysis  `json:"review,omitempty"`
	Post    *PostAnalysis    `json:"post,omitempty"`
}

// Failed reports whether the result carries an error marker.
func (r AnalysisResult) Failed() bool { return r.Error != "" }

// KeywordLibrary 八大类爆款词库。序列化时八个 key 必须全部存在。
type KeywordLibrary struct {
	PainPoints []string `json:"pain_points"`
	Effects    []string `json:"effects"`
	Promises   []string `json:"promises"`
	Emotions   []string `json:"emotions"`
	Tones      []string `json:"tones"`
	Audiences  []string `json:"audiences"`
	Timings    []string `json:"timings"`
	Products   []string `json:"products"`
}

// KeywordKeys 固定顺序的八个分类 key。
var KeywordKeys = []string{"pain_points", "effects", "promises", "emotions", "tones", "audiences", "timings", "products"}

// NewKeywordLibrary returns a library with all eight categories present and empty.
func NewKeywordLibrary() KeywordLibrary {
	var lib KeywordLibrary
	for _, key := range KeywordKeys {
		*lib.slot(key) = []string{}
	}
	return lib
}

// Get returns the terms of one category, or nil for an unknown key.
func (k KeywordLibrary) Get(key string) []string {
	if s := k.slot(key); s != nil {
		return *s
	}
	return nil
}

func (k *KeywordLibrary) slot(key string) *[]string {
	switch key {
	case "pain_points":
		return &k.PainPoints
	case "effects":
		return &k.Effects
	case "promises":
		return &k.Promises
	case "emotions":
		return &k.Emotions
	case "tones":
		return &k.Tones
	case "audiences":
		return &k.Audiences
	case "timings":
		return &k.Timings
	case "products":
		return &k.Products
	}
	return nil
}

// StrategyReport 深度策略报告。
type StrategyReport struct {
	TargetAudience   string         `json:"target_audience"`
	CorePainPoint    string         `json:"core_pain_point"`
	CoreSellingPoint string         `json:"core_selling_point"`
	EmotionStrategy  string         `json:"emotion_strategy"`
	DeepNeed         string         `json:"deep_need"`
	UsageScenario    string         `json:"usage_scenario"`
	KeywordLibrary   KeywordLibrary `json:"keyword_library"`
}

// TitleCandidate 一个候选标题及推荐理由。
type TitleCandidate struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// TitleBatchSize 标题阶段要求模型给出的标题数量。
const TitleBatchSize = 10

// FallbackTitle 标题解析失败时使用的默认标题。
const FallbackTitle = "未命名标题"

// TitleBatch 标题阶段产物：模型编写的标题 Prompt + 十个候选标题。
type TitleBatch struct {
	TitlePrompt      string           `json:"title_prompt"`
	Titles           []TitleCandidate `json:"generated_titles"`
	SelectedFormulas []string         `json:"selected_formulas"`
}

// First returns the top-ranked title, or FallbackTitle when there is none.
func (b TitleBatch) First() string {
	if len(b.Titles) == 0 || strings.TrimSpace(b.Titles[0].Title) == "" {
		return FallbackTitle
	}
	return strings.TrimSpace(b.Titles[0].Title)
}

// CopyResult 正文阶段产物。
type CopyResult struct {
	BodyPrompt string `json:"body_prompt"`
	Content    string `json:"content"`
	Tags       string `json:"tags"`
}

// Artifact 阶段产物：原始文本 + 尽力解析出的结构化值。
type Artifact[T any] struct {
	Raw    string `json:"raw"`
	Value  T      `json:"value"`
	Parsed bool   `json:"parsed"`
	Error  string `json:"error,omitempty"`
}

// Turn 记录一次基于选定标题的正文重写。
type Turn struct {
	Title     string               `json:"title"`
	Copy      Artifact[CopyResult] `json:"copy"`
	CreatedAt time.Time            `json:"created_at"`
}
