package generator

import (
	"context"
	"sync"
)

// pngStub 只有文件头，足够让 mimetype 识别为 image/png。
var pngStub = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func testImage(name string) Image {
	return Image{Name: name, Data: pngStub}
}

// scriptedLLM 按任务返回预设文本或错误，未配置的任务交给 MockLLM。可并发调用。
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	errAll    error
	calls     map[string]int
	prompts   map[string][]Prompt
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		responses: map[string]string{},
		errs:      map[string]error{},
		calls:     map[string]int{},
		prompts:   map[string][]Prompt{},
	}
}

func (s *scriptedLLM) Complete(ctx context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	s.calls[p.Task]++
	s.prompts[p.Task] = append(s.prompts[p.Task], p)
	resp, hasResp := s.responses[p.Task]
	err := s.errs[p.Task]
	if s.errAll != nil {
		err = s.errAll
	}
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	if hasResp {
		return resp, nil
	}
	return MockLLM{}.Complete(ctx, p)
}

func (s *scriptedLLM) callCount(task string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[task]
}

func (s *scriptedLLM) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *scriptedLLM) lastPrompt(task string) Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.prompts[task]
	if len(ps) == 0 {
		return Prompt{}
	}
	return ps[len(ps)-1]
}
