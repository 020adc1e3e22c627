package publisher

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"xhs_copycat/generator"
)

// 导出的文件名。
const (
	ReportMarkdown = "report.md"
	ReportHTML     = "report.html"
	PostText       = "post.txt"
)

// Publisher 把一次完成的运行导出为本地文件：策略报告（Markdown/HTML）与可直接粘贴的笔记文本。
type Publisher struct {
	log    zerolog.Logger
	md     goldmark.Markdown
	labels map[string]string
}

// New 使用目录中的词类名称渲染词库表格。
func New(log zerolog.Logger, catalog generator.Catalog) *Publisher {
	labels := make(map[string]string, len(catalog.Keywords))
	for _, k := range catalog.Keywords {
		labels[k.Key] = k.Label
	}
	return &Publisher{
		log:    log,
		md:     goldmark.New(goldmark.WithExtensions(extension.Table)),
		labels: labels,
	}
}

// Publish 写入 dir/<run_id>/ 下的三个文件，返回该目录。
func (p *Publisher) Publish(res *generator.Result, dir string) (string, error) {
	if res == nil {
		return "", errors.New("result is nil")
	}
	if res.State != generator.StateComplete {
		return "", fmt.Errorf("run %s is %s, nothing to publish", res.RunID, res.State)
	}
	target := filepath.Join(dir, res.RunID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	md := p.RenderMarkdown(res)
	body, err := p.mdToHTML(md)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	files := map[string]string{
		ReportMarkdown: md,
		ReportHTML:     wrapHTML(res.SelectedTitle, body),
		PostText:       RenderPost(res),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(target, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	p.log.Info().Str("run_id", res.RunID).Str("dir", target).Msg("report exported")
	return target, nil
}

// RenderPost 标题 + 正文 + 标签，即发布到平台的最终文本。
func RenderPost(res *generator.Result) string {
	var sb strings.Builder
	sb.WriteString(res.SelectedTitle)
	sb.WriteString("\n\n")
	if c := strings.TrimSpace(res.Copy.Value.Content); c != "" {
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}
	if t := strings.TrimSpace(res.Copy.Value.Tags); t != "" {
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderMarkdown 生成完整的运行报告。
func (p *Publisher) RenderMarkdown(res *generator.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", res.SelectedTitle)
	fmt.Fprintf(&sb, "运行 ID: `%s`\n\n", res.RunID)

	if len(res.Warnings) > 0 {
		sb.WriteString("## 提示\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
		sb.WriteString("\n")
	}

	s := res.Strategy.Value
	sb.WriteString("## 策略报告\n\n")
	if res.Strategy.Error != "" {
		fmt.Fprintf(&sb, "> 策略生成失败: %s\n\n", res.Strategy.Error)
	}
	for _, row := range [][2]string{
		{"目标人群", s.TargetAudience},
		{"核心痛点", s.CorePainPoint},
		{"差异化卖点", s.CoreSellingPoint},
		{"情绪策略", s.EmotionStrategy},
		{"深层需求", s.DeepNeed},
		{"使用场景", s.UsageScenario},
	} {
		if row[1] != "" {
			fmt.Fprintf(&sb, "- **%s**: %s\n", row[0], row[1])
		}
	}
	sb.WriteString("\n### 爆款词库\n\n| 词类 | 词汇 |\n| --- | --- |\n")
	for _, key := range generator.KeywordKeys {
		label := p.labels[key]
		if label == "" {
			label = key
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", label, strings.Join(s.KeywordLibrary.Get(key), "、"))
	}

	sb.WriteString("\n## 候选标题\n\n")
	if len(res.Titles.Value.SelectedFormulas) > 0 {
		fmt.Fprintf(&sb, "选用公式: %s\n\n", strings.Join(res.Titles.Value.SelectedFormulas, "、"))
	}
	for i, t := range res.Titles.Value.Titles {
		fmt.Fprintf(&sb, "%d. %s", i+1, t.Title)
		if t.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", t.Reason)
		}
		sb.WriteString("\n")
	}
	if len(res.Titles.Value.Titles) == 0 {
		sb.WriteString("(无)\n")
	}

	sb.WriteString("\n## 正文\n\n")
	if res.Copy.Error != "" {
		fmt.Fprintf(&sb, "> 正文生成失败: %s\n\n", res.Copy.Error)
	}
	if c := strings.TrimSpace(res.Copy.Value.Content); c != "" {
		sb.WriteString(c)
		sb.WriteString("\n\n")
	}
	if t := strings.TrimSpace(res.Copy.Value.Tags); t != "" {
		sb.WriteString(t)
		sb.WriteString("\n")
	}

	if bp := strings.TrimSpace(res.Titles.Value.TitlePrompt); bp != "" {
		fmt.Fprintf(&sb, "\n## 标题 Prompt\n\n```\n%s\n```\n", bp)
	}
	if bp := strings.TrimSpace(res.Copy.Value.BodyPrompt); bp != "" {
		fmt.Fprintf(&sb, "\n## 正文 Prompt\n\n```\n%s\n```\n", bp)
	}
	return sb.String()
}

func (p *Publisher) mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func wrapHTML(title, body string) string {
	return "<!DOCTYPE html>\n<html lang=\"zh-CN\">\n<head>\n<meta charset=\"utf-8\">\n<title>" +
		html.EscapeString(title) + "</title>\n</head>\n<body>\n" + body + "</body>\n</html>\n"
}
