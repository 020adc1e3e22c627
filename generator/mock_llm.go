package generator

import (
	"context"
	"fmt"
)

// MockLLM 本地调试用的占位实现：按任务返回固定的 JSON，不调用外部模型。
// 标题阶段故意带上 ```json 围栏，走一遍去围栏逻辑。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch prompt.Task {
	case TaskProduct:
		return mockProduct, nil
	case TaskText:
		return mockText, nil
	case TaskReviews:
		return mockReviews, nil
	case TaskPosts:
		return mockPosts, nil
	case TaskStrategy:
		return mockStrategy, nil
	case TaskTitles:
		return "```json\n" + mockTitles + "\n```", nil
	case TaskCopy:
		return mockCopy, nil
	default:
		return "", fmt.Errorf("mock: unknown task %q", prompt.Task)
	}
}

const mockProduct = `{
  "name": "示例产品",
  "category": "家居日用",
  "features": ["小巧便携", "一键操作", "材质安全"],
  "visual_style": "简约白色，奶油风",
  "target_audience": "25-35岁上班族",
  "selling_points": ["省时", "颜值高"]
}`

const mockText = `{
  "title_keyword_library": {
    "pain_points": ["踩坑", "没效果"],
    "effects": ["立竿见影", "省心"],
    "promises": ["亲测有效"],
    "emotions": ["绝了", "后悔没早买"],
    "tones": ["真的", "谁懂啊"],
    "audiences": ["打工人", "宝妈"],
    "timings": ["2025", "秋冬"],
    "products": ["好物", "神器"]
  },
  "search_intent": "交易类",
  "core_pain_points": ["怕买到不好用的", "价格不透明"]
}`

const mockReviews = `{
  "review_pain_points": ["说明书太简单"],
  "review_praises": ["做工扎实", "发货快"],
  "usage_scenarios": ["办公室", "卧室"]
}`

const mockPosts = `{
  "body_structure": "痛点开场 → 使用体验 → 对比 → 购买建议",
  "tone_style": "闺蜜聊天式，口语化",
  "conversion_tactics": "限时优惠 + 评论区互动",
  "format_specs": "300字左右，分段配表情"
}`

const mockStrategy = `{
  "target_audience": "25-35岁追求效率的上班族",
  "core_pain_point": "日常用品不好用又占地方",
  "core_selling_point": "小巧省心，一键搞定",
  "emotion_strategy": "惊喜 + 安心",
  "deep_need": "对生活品质的掌控感",
  "usage_scenario": "下班回家后的十分钟",
  "keyword_library": {
    "pain_points": ["踩坑", "麻烦"],
    "effects": ["省心", "立竿见影"],
    "promises": ["亲测有效"],
    "emotions": ["绝了"],
    "tones": ["真的"],
    "audiences": ["打工人"],
    "timings": ["2025"],
    "products": ["神器"]
  }
}`

const mockTitles = `{
  "title_prompt": "#角色\n你是一位资深小红书标题优化师……",
  "generated_titles": [
    {"title": "打工人真的需要这个神器", "reason": "人群词+语气词+产品词"},
    {"title": "后悔没早买！省心神器绝了", "reason": "情绪词+效果词"},
    {"title": "亲测有效｜下班十分钟搞定", "reason": "承诺词+场景"},
    {"title": "2025打工人必入好物", "reason": "时效词+人群词"},
    {"title": "谁懂啊，终于不踩坑了", "reason": "语气词+痛点词"},
    {"title": "颜值党狂喜的省心好物", "reason": "人群词+效果词"},
    {"title": "一键搞定，真的太省事", "reason": "效果词+语气词"},
    {"title": "别再踩坑！这个真的好用", "reason": "痛点词+语气词"},
    {"title": "宝妈也能轻松上手的神器", "reason": "人群词+产品词"},
    {"title": "秋冬必备，立竿见影", "reason": "时效词+效果词"}
  ],
  "selected_formulas": ["公式1", "公式3"]
}`

const mockCopy = `{
  "body_prompt": "【角色定位】作为家居日用领域的爆款文案专家……",
  "content": "姐妹们谁懂啊！之前买的同类产品用两次就闲置了，这次终于找到真正省心的。一键操作，下班回家十分钟搞定，颜值也在线。",
  "tags": ["好物分享", "打工人必备", "省心神器"]
}`
