package agent

import (
	"context"
	"iter"
	"strings"
	"sync"
)

// ScriptedReply is one canned answer of a ScriptedGenerator.
type ScriptedReply struct {
	Fragments []string
	// Err, if set, is yielded after the fragments.
	Err error
}

// ScriptedGenerator replays canned replies in order and records every request.
// Once the script runs out it answers with Fallback.
type ScriptedGenerator struct {
	mu       sync.Mutex
	replies  []ScriptedReply
	calls    []Request
	Fallback string
}

// NewScriptedGenerator creates a generator that replays replies in order.
func NewScriptedGenerator(replies ...ScriptedReply) *ScriptedGenerator {
	return &ScriptedGenerator{
		replies:  replies,
		Fallback: "Could you tell me more about that?",
	}
}

// Enqueue appends replies to the script.
func (g *ScriptedGenerator) Enqueue(replies ...ScriptedReply) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, replies...)
	return g
}

// Reply queues a successful single-block answer.
func (g *ScriptedGenerator) Reply(text string) *ScriptedGenerator {
	return g.Enqueue(ScriptedReply{Fragments: []string{text}})
}

// Fail queues a failed answer.
func (g *ScriptedGenerator) Fail(err error) *ScriptedGenerator {
	return g.Enqueue(ScriptedReply{Err: err})
}

// Name returns a fixed provider name.
func (g *ScriptedGenerator) Name() string {
	return "scripted"
}

// Generate implements Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, req Request) iter.Seq2[string, error] {
	g.mu.Lock()
	g.calls = append(g.calls, cloneRequest(req))
	reply := ScriptedReply{Fragments: strings.SplitAfter(g.Fallback, " ")}
	if len(g.replies) > 0 {
		reply = g.replies[0]
		g.replies = g.replies[1:]
	}
	g.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, frag := range reply.Fragments {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if reply.Err != nil {
			yield("", reply.Err)
		}
	}
}

// Calls returns a copy of every request received so far.
func (g *ScriptedGenerator) Calls() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Request, len(g.calls))
	copy(out, g.calls)
	return out
}

func cloneRequest(req Request) Request {
	msgs := make([]Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	return req
}
