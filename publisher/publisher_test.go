package publisher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"xhs_copycat/generator"
)

func sampleResult() *generator.Result {
	lib := generator.NewKeywordLibrary()
	lib.PainPoints = []string{"伤眼", "近视"}
	lib.Audiences = []string{"小学生"}
	return &generator.Result{
		RunID:    "run-1",
		State:    generator.StateComplete,
		Warnings: []string{"未提供爆款标题和搜索词，文本挖掘结果可能不准确"},
		Strategy: generator.Artifact[generator.StrategyReport]{
			Parsed: true,
			Value: generator.StrategyReport{
				TargetAudience: "小学生家长",
				CorePainPoint:  "孩子写作业伤眼",
				KeywordLibrary: lib,
			},
		},
		Titles: generator.Artifact[generator.TitleBatch]{
			Parsed: true,
			Value: generator.TitleBatch{
				Titles:           []generator.TitleCandidate{{Title: "护眼灯真的有用吗", Reason: "疑问句"}},
				SelectedFormulas: []string{"公式1"},
			},
		},
		SelectedTitle: "护眼灯真的有用吗",
		Copy: generator.Artifact[generator.CopyResult]{
			Parsed: true,
			Value:  generator.CopyResult{Content: "孩子写作业再也不揉眼睛了。", Tags: "#护眼灯 #好物"},
		},
	}
}

func TestPublishWritesFiles(t *testing.T) {
	p := New(zerolog.Nop(), generator.DefaultCatalog())
	dir, err := p.Publish(sampleResult(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "run-1", filepath.Base(dir))

	md, err := os.ReadFile(filepath.Join(dir, ReportMarkdown))
	require.NoError(t, err)
	require.Contains(t, string(md), "# 护眼灯真的有用吗")
	require.Contains(t, string(md), "伤眼、近视")
	require.Contains(t, string(md), "小学生家长")

	html, err := os.ReadFile(filepath.Join(dir, ReportHTML))
	require.NoError(t, err)
	require.Contains(t, string(html), "<table>")
	require.Contains(t, string(html), "<h2>策略报告</h2>")

	post, err := os.ReadFile(filepath.Join(dir, PostText))
	require.NoError(t, err)
	require.Equal(t, "护眼灯真的有用吗\n\n孩子写作业再也不揉眼睛了。\n\n#护眼灯 #好物\n", string(post))
}

func TestMarkdownListsAllKeywordCategories(t *testing.T) {
	p := New(zerolog.Nop(), generator.DefaultCatalog())
	md := p.RenderMarkdown(sampleResult())
	// 表头两行 + 八个词类
	rows := 0
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(line, "| ") {
			rows++
		}
	}
	require.Equal(t, 2+len(generator.KeywordKeys), rows)
}

func TestPublishRejectsUnfinishedRun(t *testing.T) {
	p := New(zerolog.Nop(), generator.DefaultCatalog())
	res := sampleResult()
	res.State = generator.StateFailed
	_, err := p.Publish(res, t.TempDir())
	require.Error(t, err)

	_, err = p.Publish(nil, t.TempDir())
	require.Error(t, err)
}
