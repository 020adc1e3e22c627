package generator

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// 各阶段任务名，用于日志、指标以及 MockLLM 的分派。
const (
	TaskProduct  = "product_analysis"
	TaskText     = "text_analysis"
	TaskReviews  = "review_analysis"
	TaskPosts    = "post_analysis"
	TaskStrategy = "strategy"
	TaskTitles   = "titles"
	TaskCopy     = "copy"
)

// 文本语料截断上限（按字符计）。
const (
	MaxTitlesChars   = 10000
	MaxKeywordsChars = 5000
)

// Part 是消息中的一段内容：文本或图片，二选一。
type Part struct {
	Text  string `json:"text,omitempty"`
	Image *Image `json:"image,omitempty"`
}

func TextPart(s string) Part { return Part{Text: s} }

func ImagePart(img Image) Part { return Part{Image: &img} }

// Prompt 表示发送给模型的一条用户消息（有序的多段内容）。
type Prompt struct {
	Task  string
	Parts []Part
}

// Text joins all text parts.
func (p Prompt) Text() string {
	var texts []string
	for _, part := range p.Parts {
		if part.Image == nil {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Images returns the image parts in order.
func (p Prompt) Images() []Image {
	var out []Image
	for _, part := range p.Parts {
		if part.Image != nil {
			out = append(out, *part.Image)
		}
	}
	return out
}

// Validate 检查请求是否可以构造。
func (p Prompt) Validate() error {
	if len(p.Parts) == 0 {
		return errors.New("prompt has no parts")
	}
	for i, part := range p.Parts {
		if part.Image != nil {
			if len(part.Image.Data) == 0 {
				return fmt.Errorf("image part %d has no data", i)
			}
			continue
		}
		if strings.TrimSpace(part.Text) == "" {
			return fmt.Errorf("part %d is empty", i)
		}
	}
	return nil
}

// truncateRunes 按字符做前缀截断，不做摘要。
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

const productTemplate = `请仔细分析这张商品图片，结合提供的基础信息，提取关键信息：

[基础信息]
- 产品名称: %s
- 产品价格: %s

[分析要求]
1. 精确的产品名称与细分品类（注意区分易混淆品类）。
2. 核心功能/成分（3-5个主要功能）。
3. 视觉风格。
4. 适用人群（具体的年龄段、身份）。
5. 核心卖点（差异化优势）。

请以JSON格式输出，Keys为: name, category, features, visual_style, target_audience, selling_points.`

// BuildProductPrompt 商品图 + 基础信息分析。
func BuildProductPrompt(p ProductFacts) Prompt {
	return Prompt{
		Task: TaskProduct,
		Parts: []Part{
			TextPart(fmt.Sprintf(productTemplate, p.Name, p.Price)),
			ImagePart(p.Image),
		},
	}
}

const textTemplate = `请分析以下两组文本数据：

[数据1：爆款标题]
%s

[数据2：搜索词数据]
%s

[词类定义]
%s
[分析任务]
1. **建立爆款标题词库**: 请从上述数据中提取高频词，并严格按照以上八大类进行归类（每类至少提取5-10个词）：
   - 痛点词, 效果词, 承诺词, 情绪词, 语气词, 人群词, 时效词, 产品词
2. **搜索意图分析**: 判断主要搜索意图（信息类/交易类）。
3. **核心痛点提取**: 找出用户最关心的问题。

请以JSON格式输出，Keys为:
title_keyword_library (包含8个子key: %s),
search_intent,
core_pain_points.`

// BuildTextPrompt 标题/搜索词挖掘。标题截断到 MaxTitlesChars，搜索词截断到 MaxKeywordsChars。
func BuildTextPrompt(c TextCorpus, categories []KeywordCategory) Prompt {
	text := fmt.Sprintf(textTemplate,
		truncateRunes(c.Titles, MaxTitlesChars),
		truncateRunes(c.Keywords, MaxKeywordsChars),
		RenderKeywordCategories(categories),
		strings.Join(KeywordKeys, ", "),
	)
	return Prompt{Task: TaskText, Parts: []Part{TextPart(text)}}
}

const reviewInstruction = `提取评论区关键信息：
1. 用户痛点/槽点
2. 用户夸赞点
3. 真实使用场景
请以JSON格式输出，Keys为: review_pain_points, review_praises, usage_scenarios.`

// BuildReviewPrompt 评论截图洞察，每张截图一个图片段。
func BuildReviewPrompt(images []Image) Prompt {
	return imagePrompt(TaskReviews, reviewInstruction, images)
}

const postInstruction = `拆解爆款笔记：
1. 内容结构 (行文逻辑)
2. 语气风格
3. 转化设计
4. 字数与排版
请以JSON格式输出，Keys为: body_structure, tone_style, conversion_tactics, format_specs.`

// BuildPostPrompt 对标笔记拆解，每张截图一个图片段，顺序与输入一致。
func BuildPostPrompt(images []Image) Prompt {
	return imagePrompt(TaskPosts, postInstruction, images)
}

func imagePrompt(task, instruction string, images []Image) Prompt {
	parts := make([]Part, 0, len(images)+1)
	parts = append(parts, TextPart(instruction))
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}
	return Prompt{Task: task, Parts: parts}
}

// StrategyInput 四路分析的原始文本，出错的结果也原样传入。
type StrategyInput struct {
	Product string
	Text    string
	Reviews string
	Posts   string
}

const strategyTemplate = `# Role
你是一个小红书爆款策略专家。

# Context
[产品数据] %s
[文本数据] %s
[评论数据] %s
[竞品数据] %s
[情绪库]
%s
# Note
部分数据可能包含 error 字段或缺失，请基于其余数据尽力完成，不要因此中断。

# Task
生成一份深度策略报告：
1. **目标人群画像**: 具体到年龄、身份、痛点。
2. **核心痛点**: 最紧迫需要解决的问题。
3. **差异化卖点**: 为什么选这个产品。
4. **情绪策略**: 从情绪库中选定2-3种核心情绪。
5. **深层需求**: 精神层面满足。
6. **使用场景**: 具体画面。
7. **词库构建**: 基于[文本数据]的分析，输出针对该产品的【八大类爆款词库】（痛点/效果/承诺/情绪/语气/人群/时效/产品）。

# Output Format
JSON: {
    "target_audience": "...",
    "core_pain_point": "...",
    "core_selling_point": "...",
    "emotion_strategy": "...",
    "deep_need": "...",
    "usage_scenario": "...",
    "keyword_library": {
        "pain_points": ["...", "..."],
        "effects": ["...", "..."],
        "promises": ["...", "..."],
        "emotions": ["...", "..."],
        "tones": ["...", "..."],
        "audiences": ["...", "..."],
        "timings": ["...", "..."],
        "products": ["...", "..."]
    }
}`

// BuildStrategyPrompt 汇总四路分析并注入完整情绪清单。
func BuildStrategyPrompt(in StrategyInput, emotions EmotionTaxonomy) Prompt {
	text := fmt.Sprintf(strategyTemplate, in.Product, in.Text, in.Reviews, in.Posts, emotions.String())
	return Prompt{Task: TaskStrategy, Parts: []Part{TextPart(text)}}
}

const titleTemplate = `# Role
你是一位资深小红书标题优化师，擅长结合关键词库和爆款公式创作高点击率标题。

# Context
[策略报告] %s
[内置公式库]
%s
# Task 1: 智能选择与填充
1. 从策略报告中提取产品信息（名称、卖点、人群、痛点）。
2. 提取策略报告中的【八大类词库】具体词汇。
3. 选择最适合该产品的1-2个爆款公式。

# Task 2: 编写标题生成提示词 (Title Prompt)
请严格按照以下模板，将 Task 1 提取的内容填充进去，生成一个完整的 Prompt：

[Prompt模板]
#角色
你是一位资深小红书标题优化师，擅长结合关键词库和爆款公式创作高点击率标题。

#任务
基于我提供的“产品信息”和“标题词库”，使用指定的“爆款公式”生成%d个标题。

#产品信息
- **产品名称**：[从策略报告提取]
- **核心卖点**：[从策略报告提取]
- **目标人群**：[从策略报告提取]
- **要解决的痛点**：[从策略报告提取]

#标题词库（请按类别填充收集好的词）
- **痛点词**：[从策略报告提取]
- **效果词**：[从策略报告提取]
- **人群词**：[从策略报告提取]
- **情绪词**：[从策略报告提取]
- ...（其他已有的词类）

#爆款公式（请选择1-2个）
[填入选定的1-2个具体公式内容]

#生成要求
1. 每个标题必须至少包含3类不同的关键词。字数控制在20字以内。
2. 优先使用提供的词库中的词汇。
3. 标题要口语化，有冲击力，避免生硬广告感。
4. 输出格式：直接列出标题，每个标题一行。最后确认标题符合以下要求：
   是否一眼看懂？（5秒内懂）
   是否圈定了精准人群？（让对的人点进来）
   是否激发了好奇或共鸣？（有点击冲动）
   是否包含了搜索关键词？（能被搜到）

# Task 3: 执行生成
使用你编写的 [Title Prompt] 生成 %d 个爆款标题，按推荐程度从高到低排序。

# Output Format
JSON: {
    "title_prompt": "...",
    "generated_titles": [
        {"title": "...", "reason": "..."}
    ],
    "selected_formulas": ["公式名称..."]
}
generated_titles 必须恰好包含 %d 项。`

// BuildTitlePrompt 要求模型先按模板写出标题 Prompt，再在同一次调用中执行它。
func BuildTitlePrompt(strategy string, formulas []TitleFormula) Prompt {
	text := fmt.Sprintf(titleTemplate, strategy, RenderFormulas(formulas), TitleBatchSize, TitleBatchSize, TitleBatchSize)
	return Prompt{Task: TaskTitles, Parts: []Part{TextPart(text)}}
}

const copyTemplate = `# Role
你是一个小红书爆款文案专家。

# Context
[策略报告] %s
[选定标题] %s

# Task 1: 编写正文提示词 (Body Prompt)
请严格按照以下结构，基于策略报告编写一个**生成正文的指令**（Prompt）：

[Prompt模板]
【角色定位】作为[行业]领域的爆款文案专家
【用户画像】针对[分析得出的用户特征]人群
【核心痛点】解决[分析出的核心痛点]问题
【情绪基调】采用[情绪词1]+[情绪词2]组合
【内容风格】[分析出的风格偏好]+[卖点突出方式]
【深层需求】满足用户[精神层面的需求]
【结构要求】包含价值主张+案例佐证+行动召唤
【字数限制】300字左右
【避坑指南】避免[竞品常见问题]

# Task 2: 撰写文案 (Sample Copy)
执行你刚才编写的 [Body Prompt]，为 [选定标题] 撰写一篇爆款笔记正文。

# Output Format
JSON: {
    "body_prompt": "...",
    "content": "...",
    "tags": "#..."
}`

// BuildCopyPrompt 与标题阶段相同的两级指令：先写正文 Prompt，再执行。
func BuildCopyPrompt(strategy, title string) Prompt {
	text := fmt.Sprintf(copyTemplate, strategy, title)
	return Prompt{Task: TaskCopy, Parts: []Part{TextPart(text)}}
}
