package google

import (
	"encoding/json"
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
)

// streamState is stateless beyond tracking whether any tool call has
// been seen in this stream, since Gemini returns complete calls in a
// single chunk (spec.md §4.3's Google streaming rule).
type streamState struct {
	sawToolCall bool
}

func (c *Compat) NewStreamState() compat.StreamState {
	return &streamState{}
}

func (s *streamState) ParseChunk(chunk map[string]any) (compat.StreamChunkResult, error) {
	var result compat.StreamChunkResult

	candidates, _ := chunk["candidates"].([]any)
	if len(candidates) == 0 {
		if usage, ok := chunk["usageMetadata"].(map[string]any); ok {
			result.Usage = parseUsage(usage)
		}
		return result, nil
	}
	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return result, fmt.Errorf("google: malformed streaming candidate")
	}

	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)

	var text, reasoning string
	var sawFunctionCallThisChunk bool

	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if isThought, _ := part["thought"].(bool); isThought {
			if t, ok := part["text"].(string); ok {
				reasoning += t
			}
			continue
		}
		if !sawFunctionCallThisChunk {
			if fc, ok := part["functionCall"].(map[string]any); ok {
				name, _ := fc["name"].(string)
				args, _ := fc["args"].(map[string]any)
				if args == nil {
					args = map[string]any{}
				}
				callID := fmt.Sprintf("call_%s", name)
				result.ToolEvents = append(result.ToolEvents,
					llmadapter.ToolEvent{Kind: llmadapter.ToolEventStart, CallID: callID, Name: name},
					llmadapter.ToolEvent{Kind: llmadapter.ToolEventArgumentsDelta, CallID: callID, ArgumentsDelta: stringifyArgs(args)},
					llmadapter.ToolEvent{Kind: llmadapter.ToolEventEnd, CallID: callID, Name: name, Arguments: args},
				)
				sawFunctionCallThisChunk = true
				s.sawToolCall = true
				continue
			}
		}
		if t, ok := part["text"].(string); ok {
			text += t
		}
	}

	result.Text = text
	result.Reasoning = reasoning

	if fr, ok := candidate["finishReason"].(string); ok && fr != "" {
		result.FinishReason = &fr
		if fr == "STOP" && s.sawToolCall {
			result.FinishedWithToolCalls = true
		}
	}

	if usage, ok := chunk["usageMetadata"].(map[string]any); ok {
		result.Usage = parseUsage(usage)
	}

	return result, nil
}

func stringifyArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}
