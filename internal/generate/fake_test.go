package generate

import (
	"context"
	"sync"
)

// scriptedProvider replays responses and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []scripted
	requests  []Request
}

type scripted struct {
	text string
	err  error
}

func (p *scriptedProvider) Generate(_ context.Context, req Request) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return Response{}, nil
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return Response{Text: next.text}, next.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
