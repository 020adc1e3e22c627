package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func completedSession(t *testing.T, llm *scriptedLLM) *Session {
	t.Helper()
	p := newTestPipeline(t, llm, nil)
	res, err := p.Run(context.Background(), lampInput())
	require.NoError(t, err)
	return NewSession(res, p.Agent())
}

func TestSessionSelectTitle(t *testing.T) {
	llm := newScriptedLLM()
	s := completedSession(t, llm)
	require.Len(t, s.History(), 1)

	want := s.Result().Titles.Value.Titles[2].Title
	turn, err := s.SelectTitle(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, want, turn.Title)
	require.Equal(t, want, s.Result().SelectedTitle)
	require.Contains(t, llm.lastPrompt(TaskCopy).Text(), want)
	require.Equal(t, 2, llm.callCount(TaskCopy))

	history := s.History()
	require.Len(t, history, 2)
	require.Equal(t, want, history[1].Title)
}

func TestSessionRewriteCustomTitle(t *testing.T) {
	llm := newScriptedLLM()
	s := completedSession(t, llm)
	llm.responses[TaskCopy] = `{"content":"新的正文","tags":["护眼"]}`

	turn, err := s.Rewrite(context.Background(), "  我自己想的标题 ")
	require.NoError(t, err)
	require.Equal(t, "我自己想的标题", turn.Title)
	require.Equal(t, "新的正文", s.Result().Copy.Value.Content)
	require.Equal(t, "#护眼", s.Result().Copy.Value.Tags)
	require.Contains(t, llm.lastPrompt(TaskCopy).Text(), s.Result().Strategy.Raw)
}

func TestSessionRejectsBadInput(t *testing.T) {
	s := completedSession(t, newScriptedLLM())

	var verr *ValidationError
	_, err := s.SelectTitle(context.Background(), TitleBatchSize)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "index", verr.Field)

	_, err = s.SelectTitle(context.Background(), -1)
	require.ErrorAs(t, err, &verr)

	_, err = s.Rewrite(context.Background(), " ")
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "title", verr.Field)
	require.Len(t, s.History(), 1)
}

func TestSessionFailedRunCannotRewrite(t *testing.T) {
	a := newTestAgent(t, newScriptedLLM())
	s := NewSession(&Result{RunID: "r", State: StateFailed}, a)
	require.Empty(t, s.History())
	_, err := s.Rewrite(context.Background(), "标题")
	require.Error(t, err)
}
