package openairesp

import (
	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
)

type pendingCall struct {
	callID  string
	name    string
	argsBuf string
}

// streamState folds responses-API SSE events, keyed by output_index,
// into the unified ToolEvent stream.
type streamState struct {
	calls map[int]*pendingCall
}

func (c *Compat) NewStreamState() compat.StreamState {
	return &streamState{calls: map[int]*pendingCall{}}
}

func (s *streamState) ParseChunk(chunk map[string]any) (compat.StreamChunkResult, error) {
	var result compat.StreamChunkResult

	typ, _ := chunk["type"].(string)
	index, _ := intOf(chunk["output_index"])

	switch typ {
	case "response.output_text.delta":
		if delta, ok := chunk["delta"].(string); ok && delta != "" {
			result.Text = delta
		}

	case "response.output_item.added":
		item, _ := chunk["item"].(map[string]any)
		if item != nil && item["type"] == "function_call" {
			callID, _ := item["call_id"].(string)
			name, _ := item["name"].(string)
			s.calls[index] = &pendingCall{callID: callID, name: name}
			result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
				Kind: llmadapter.ToolEventStart, CallID: callID, Name: name,
			})
		}

	case "response.function_call_arguments.delta":
		call, ok := s.calls[index]
		if !ok {
			return result, nil
		}
		delta, _ := chunk["delta"].(string)
		call.argsBuf += delta
		if delta != "" {
			result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
				Kind: llmadapter.ToolEventArgumentsDelta, CallID: call.callID, ArgumentsDelta: delta,
			})
		}

	case "response.output_item.done":
		if call, ok := s.calls[index]; ok {
			result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
				Kind:      llmadapter.ToolEventEnd,
				CallID:    call.callID,
				Name:      call.name,
				Arguments: llmadapter.ParseArguments(call.argsBuf),
			})
			delete(s.calls, index)
		}

	case "response.completed":
		if resp, ok := chunk["response"].(map[string]any); ok {
			if status, ok := resp["status"].(string); ok {
				result.FinishReason = &status
			}
			if usage, ok := resp["usage"].(map[string]any); ok {
				result.Usage = parseUsage(usage)
			}
		}
	}

	return result, nil
}

func intOf(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
