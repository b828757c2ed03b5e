package openai

import (
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
)

// streamCall tracks one in-progress tool call, keyed by the chunk's
// numeric `index` field (spec.md §4.3's OpenAI streaming rules).
type streamCall struct {
	callID  string
	name    string
	argsBuf string
	started bool
}

// streamState implements compat.StreamState for OpenAI chat-completion
// streaming chunks.
type streamState struct {
	calls map[int]*streamCall
}

func (c *Compat) NewStreamState() compat.StreamState {
	return &streamState{calls: map[int]*streamCall{}}
}

func (s *streamState) ParseChunk(chunk map[string]any) (compat.StreamChunkResult, error) {
	var result compat.StreamChunkResult

	choices, _ := chunk["choices"].([]any)
	if len(choices) == 0 {
		if usage, ok := chunk["usage"].(map[string]any); ok {
			result.Usage = parseUsage(usage)
		}
		return result, nil
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return result, fmt.Errorf("openai: malformed streaming choice")
	}

	delta, _ := choice["delta"].(map[string]any)
	if text, ok := delta["content"].(string); ok && text != "" {
		result.Text = text
	}

	toolCallsRaw, hasToolCallsDelta := delta["tool_calls"].([]any)
	for _, raw := range toolCallsRaw {
		events, err := s.foldToolCallDelta(raw)
		if err != nil {
			return result, err
		}
		result.ToolEvents = append(result.ToolEvents, events...)
	}

	if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
		result.FinishReason = &fr
		if fr == "tool_calls" {
			if hasToolCallsDelta && len(toolCallsRaw) > 0 {
				for idx, call := range s.calls {
					if call.started {
						result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
							Kind:      llmadapter.ToolEventEnd,
							CallID:    call.callID,
							Name:      call.name,
							Arguments: llmadapter.ParseArguments(call.argsBuf),
						})
						delete(s.calls, idx)
					}
				}
			} else {
				result.FinishedWithToolCalls = true
			}
		}
	}

	if usage, ok := chunk["usage"].(map[string]any); ok {
		result.Usage = parseUsage(usage)
	}

	return result, nil
}

func (s *streamState) foldToolCallDelta(raw any) ([]llmadapter.ToolEvent, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("openai: malformed tool_calls delta entry")
	}
	index, ok := indexOf(m["index"])
	if !ok {
		return nil, fmt.Errorf("openai: tool_calls delta missing index")
	}

	fn, _ := m["function"].(map[string]any)
	var events []llmadapter.ToolEvent

	call, exists := s.calls[index]
	if id, ok := m["id"].(string); ok && id != "" {
		name, _ := fn["name"].(string)
		if !exists {
			call = &streamCall{callID: id, name: name}
			s.calls[index] = call
		}
		if !call.started {
			call.started = true
			events = append(events, llmadapter.ToolEvent{
				Kind:   llmadapter.ToolEventStart,
				CallID: call.callID,
				Name:   call.name,
			})
		}
	}
	if call == nil {
		// Continuation for an index we never saw a start for: ignore
		// rather than crash, per spec.md's "unknown index continuations
		// are ignored" rule.
		return events, nil
	}

	if args, ok := fn["arguments"].(string); ok && args != "" {
		call.argsBuf += args
		events = append(events, llmadapter.ToolEvent{
			Kind:           llmadapter.ToolEventArgumentsDelta,
			CallID:         call.callID,
			ArgumentsDelta: args,
		})
	}

	return events, nil
}

func indexOf(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
