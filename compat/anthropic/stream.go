package anthropic

import (
	"fmt"

	"github.com/taipm/llmadapter"
	"github.com/taipm/llmadapter/compat"
)

type toolUseBlock struct {
	id      string
	name    string
	argsBuf string
}

// streamState folds Anthropic SSE event objects (already decoded into
// generic maps by the invoker) into tool events and reasoning/text
// deltas, per spec.md §4.3's Anthropic streaming rules.
type streamState struct {
	blocks map[int]*toolUseBlock
}

func (c *Compat) NewStreamState() compat.StreamState {
	return &streamState{blocks: map[int]*toolUseBlock{}}
}

func (s *streamState) ParseChunk(chunk map[string]any) (compat.StreamChunkResult, error) {
	var result compat.StreamChunkResult

	typ, _ := chunk["type"].(string)
	switch typ {
	case "message_start", "message_stop":
		s.blocks = map[int]*toolUseBlock{}

	case "content_block_start":
		index, _ := intOf(chunk["index"])
		cb, ok := chunk["content_block"].(map[string]any)
		if !ok {
			return result, fmt.Errorf("anthropic: content_block_start with null content_block")
		}
		if cb["type"] == "tool_use" {
			id, _ := cb["id"].(string)
			name, _ := cb["name"].(string)
			s.blocks[index] = &toolUseBlock{id: id, name: name}
			result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
				Kind: llmadapter.ToolEventStart, CallID: id, Name: name,
			})
		}

	case "content_block_delta":
		index, _ := intOf(chunk["index"])
		delta, ok := chunk["delta"].(map[string]any)
		if !ok {
			return result, fmt.Errorf("anthropic: content_block_delta with null delta")
		}
		switch delta["type"] {
		case "input_json_delta":
			block, known := s.blocks[index]
			if !known {
				return result, nil
			}
			partial, _ := delta["partial_json"].(string)
			block.argsBuf += partial
			if partial != "" {
				result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
					Kind: llmadapter.ToolEventArgumentsDelta, CallID: block.id, ArgumentsDelta: partial,
				})
			}
		case "text_delta":
			if text, ok := delta["text"].(string); ok && text != "" {
				result.Text = text
			}
		case "thinking_delta":
			if text, ok := delta["thinking"].(string); ok && text != "" {
				result.Reasoning = text
			}
		}

	case "content_block_stop":
		index, _ := intOf(chunk["index"])
		if block, ok := s.blocks[index]; ok {
			result.ToolEvents = append(result.ToolEvents, llmadapter.ToolEvent{
				Kind:      llmadapter.ToolEventEnd,
				CallID:    block.id,
				Name:      block.name,
				Arguments: llmadapter.ParseArguments(block.argsBuf),
			})
			delete(s.blocks, index)
		}

	case "message_delta":
		if delta, ok := chunk["delta"].(map[string]any); ok {
			if sr, ok := delta["stop_reason"].(string); ok {
				mapped := mapFinishReason(sr)
				result.FinishReason = mapped
				if sr == "tool_use" {
					result.FinishedWithToolCalls = true
				}
			}
		}
		if usage, ok := chunk["usage"].(map[string]any); ok {
			result.Usage = parseUsage(usage)
		}

	default:
		result.Reasoning = extractTopLevelThinking(chunk)
	}

	return result, nil
}

// extractTopLevelThinking covers the alternate shapes spec.md §4.3
// names for reasoning deltas beyond thinking_delta: a top-level
// `chunk.thinking` string, `delta.thinking` as string/{text}/{content:
// [{text}]}, or `delta.analysis`.
func extractTopLevelThinking(chunk map[string]any) string {
	if text, ok := chunk["thinking"].(string); ok {
		return text
	}
	delta, _ := chunk["delta"].(map[string]any)
	if delta == nil {
		return ""
	}
	if text, ok := delta["analysis"].(string); ok {
		return text
	}
	switch v := delta["thinking"].(type) {
	case string:
		return v
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
		if content, ok := v["content"].([]any); ok {
			var out string
			for _, c := range content {
				if cm, ok := c.(map[string]any); ok {
					if text, ok := cm["text"].(string); ok {
						out += text
					}
				}
			}
			return out
		}
	}
	return ""
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
