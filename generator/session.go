package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Session 持有一次运行的结果，支持换标题重写正文。
type Session struct {
	ID string

	mu      sync.Mutex
	result  *Result
	history []Turn
	agent   *Agent
}

// NewSession 基于已完成的运行创建 session，首版正文记为第一轮。
func NewSession(result *Result, agent *Agent) *Session {
	s := &Session{ID: result.RunID, result: result, agent: agent}
	if result.State == StateComplete {
		s.history = append(s.history, Turn{Title: result.SelectedTitle, Copy: result.Copy, CreatedAt: result.FinishedAt})
	}
	return s
}

// Result returns a copy of the current run result.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.result
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SelectTitle 选用第 index 个候选标题（从 0 开始）重写正文。
func (s *Session) SelectTitle(ctx context.Context, index int) (Turn, error) {
	s.mu.Lock()
	titles := s.result.Titles.Value.Titles
	if index < 0 || index >= len(titles) {
		s.mu.Unlock()
		return Turn{}, &ValidationError{Field: "index", Message: fmt.Sprintf("标题序号超出范围 (共 %d 个)", len(titles))}
	}
	title := titles[index].Title
	s.mu.Unlock()
	return s.Rewrite(ctx, title)
}

// Rewrite 用指定标题重新执行正文阶段，结果记入历史并成为当前正文。
func (s *Session) Rewrite(ctx context.Context, title string) (Turn, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Turn{}, &ValidationError{Field: "title", Message: "标题不能为空"}
	}

	s.mu.Lock()
	if s.result.State != StateComplete {
		s.mu.Unlock()
		return Turn{}, fmt.Errorf("run %s is %s, cannot rewrite", s.ID, s.result.State)
	}
	strategy := s.result.Strategy.Raw
	s.mu.Unlock()

	cp, err := s.agent.GenerateCopy(ctx, strategy, title)
	if err != nil {
		return Turn{}, err
	}
	turn := Turn{Title: title, Copy: cp, CreatedAt: time.Now()}

	s.mu.Lock()
	s.result.SelectedTitle = title
	s.result.Copy = cp
	s.history = append(s.history, turn)
	s.mu.Unlock()
	return turn, nil
}
