package generator

import (
	"strings"

	"github.com/tidwall/gjson"
)

// 模型只是被“要求”输出某种 JSON 结构，这里的解码器对缺失或类型不符的字段一律填默认值。

// parseObject returns the JSON object in raw. When raw is not valid JSON the first
// balanced {...} block inside it is tried instead.
func parseObject(raw string) (gjson.Result, bool) {
	s := strings.TrimSpace(raw)
	if !gjson.Valid(s) {
		obj, ok := extractJSONObject(s)
		if !ok || !gjson.Valid(obj) {
			return gjson.Result{}, false
		}
		s = obj
	}
	r := gjson.Parse(s)
	if !r.IsObject() {
		return gjson.Result{}, false
	}
	return r, true
}

// extractJSONObject 在文本中查找首个括号配平的 JSON 对象（跳过字符串内的括号）。
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// errorOf returns the message of an error marker, or "" when there is none.
// null、false 与空字符串都不算错误。
func errorOf(r gjson.Result) string {
	e := r.Get("error")
	switch {
	case !e.Exists(), e.Type == gjson.Null, e.Type == gjson.False:
		return ""
	case e.Type == gjson.String && strings.TrimSpace(e.Str) == "":
		return ""
	}
	if msg := textOf(e); msg != "" {
		return msg
	}
	return "unknown error"
}

// textOf 把任意 JSON 值压成一段文本：数组用顿号拼接，对象保留原始 JSON。
func textOf(r gjson.Result) string {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return ""
	case r.IsArray():
		var items []string
		for _, item := range r.Array() {
			if s := textOf(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, "、")
	case r.IsObject():
		return strings.TrimSpace(r.Raw)
	default:
		return strings.TrimSpace(r.String())
	}
}

// listOf 数组逐项取文本；单个字符串视为只有一项。结果永远非 nil。
func listOf(r gjson.Result) []string {
	out := []string{}
	if r.IsArray() {
		for _, item := range r.Array() {
			if s := textOf(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := textOf(r); s != "" {
		out = append(out, s)
	}
	return out
}

func decodeKeywordLibrary(r gjson.Result) KeywordLibrary {
	lib := NewKeywordLibrary()
	if !r.IsObject() {
		return lib
	}
	for _, key := range KeywordKeys {
		*lib.slot(key) = listOf(r.Get(key))
	}
	return lib
}

// DecodeAnalysis 解析一路分析的原始文本。
func DecodeAnalysis(kind AnalysisKind, raw string) AnalysisResult {
	res := AnalysisResult{Kind: kind, Raw: raw}
	r, ok := parseObject(raw)
	if !ok {
		return withEmptyAnalysis(res)
	}
	res.Parsed = true
	res.Error = errorOf(r)

	switch kind {
	case KindProduct:
		res.Product = &ProductAnalysis{
			Name:           textOf(r.Get("name")),
			Category:       textOf(r.Get("category")),
			Features:       listOf(r.Get("features")),
			VisualStyle:    textOf(r.Get("visual_style")),
			TargetAudience: textOf(r.Get("target_audience")),
			SellingPoints:  listOf(r.Get("selling_points")),
		}
	case KindText:
		res.Text = &TextAnalysis{
			KeywordLibrary: decodeKeywordLibrary(r.Get("title_keyword_library")),
			SearchIntent:   textOf(r.Get("search_intent")),
			CorePainPoints: listOf(r.Get("core_pain_points")),
		}
	case KindReviews:
		res.Review = &ReviewAnalysis{
			PainPoints:     listOf(r.Get("review_pain_points")),
			Praises:        listOf(r.Get("review_praises")),
			UsageScenarios: listOf(r.Get("usage_scenarios")),
		}
	case KindPosts:
		res.Post = &PostAnalysis{
			BodyStructure:     textOf(r.Get("body_structure")),
			ToneStyle:         textOf(r.Get("tone_style")),
			ConversionTactics: textOf(r.Get("conversion_tactics")),
			FormatSpecs:       textOf(r.Get("format_specs")),
		}
	}
	return res
}

// withEmptyAnalysis fills the kind-specific slot with zero values so consumers never see nil.
func withEmptyAnalysis(res AnalysisResult) AnalysisResult {
	switch res.Kind {
	case KindProduct:
		res.Product = &ProductAnalysis{Features: []string{}, SellingPoints: []string{}}
	case KindText:
		res.Text = &TextAnalysis{KeywordLibrary: NewKeywordLibrary(), CorePainPoints: []string{}}
	case KindReviews:
		res.Review = &ReviewAnalysis{PainPoints: []string{}, Praises: []string{}, UsageScenarios: []string{}}
	case KindPosts:
		res.Post = &PostAnalysis{}
	}
	return res
}

// DecodeStrategy 解析策略报告；词库八个 key 始终存在。
func DecodeStrategy(raw string) Artifact[StrategyReport] {
	out := Artifact[StrategyReport]{Raw: raw, Value: StrategyReport{KeywordLibrary: NewKeywordLibrary()}}
	r, ok := parseObject(raw)
	if !ok {
		return out
	}
	out.Parsed = true
	out.Error = errorOf(r)
	out.Value = StrategyReport{
		TargetAudience:   textOf(r.Get("target_audience")),
		CorePainPoint:    textOf(r.Get("core_pain_point")),
		CoreSellingPoint: textOf(r.Get("core_selling_point")),
		EmotionStrategy:  textOf(r.Get("emotion_strategy")),
		DeepNeed:         textOf(r.Get("deep_need")),
		UsageScenario:    textOf(r.Get("usage_scenario")),
		KeywordLibrary:   decodeKeywordLibrary(r.Get("keyword_library")),
	}
	return out
}

// DecodeTitles 解析标题批次，最多保留 TitleBatchSize 个非空标题，顺序不变。
func DecodeTitles(raw string) Artifact[TitleBatch] {
	out := Artifact[TitleBatch]{Raw: raw, Value: TitleBatch{Titles: []TitleCandidate{}, SelectedFormulas: []string{}}}
	r, ok := parseObject(raw)
	if !ok {
		return out
	}
	out.Parsed = true
	out.Error = errorOf(r)
	out.Value.TitlePrompt = textOf(r.Get("title_prompt"))
	out.Value.SelectedFormulas = listOf(r.Get("selected_formulas"))

	titles := r.Get("generated_titles")
	if !titles.IsArray() {
		return out
	}
	for _, item := range titles.Array() {
		if len(out.Value.Titles) == TitleBatchSize {
			break
		}
		var c TitleCandidate
		if item.IsObject() {
			c = TitleCandidate{Title: textOf(item.Get("title")), Reason: textOf(item.Get("reason"))}
		} else {
			c = TitleCandidate{Title: textOf(item)}
		}
		if c.Title == "" {
			continue
		}
		out.Value.Titles = append(out.Value.Titles, c)
	}
	return out
}

// DecodeCopy 解析正文结果；tags 为数组时用空格拼接。
func DecodeCopy(raw string) Artifact[CopyResult] {
	out := Artifact[CopyResult]{Raw: raw}
	r, ok := parseObject(raw)
	if !ok {
		return out
	}
	out.Parsed = true
	out.Error = errorOf(r)
	out.Value = CopyResult{
		BodyPrompt: textOf(r.Get("body_prompt")),
		Content:    textOf(r.Get("content")),
		Tags:       tagsOf(r.Get("tags")),
	}
	return out
}

func tagsOf(r gjson.Result) string {
	if !r.IsArray() {
		return textOf(r)
	}
	tags := listOf(r)
	for i, t := range tags {
		if !strings.HasPrefix(t, "#") {
			tags[i] = "#" + t
		}
	}
	return strings.Join(tags, " ")
}
