// Package llmadapter provides a provider-agnostic LLM orchestration
// coordinator. It accepts a single declarative call spec (messages, a
// prioritized list of provider/model targets, a tool catalog, optional
// vector-context configuration, and generation settings) and produces
// either a unified final response or a stream of unified events, hiding
// per-provider wire-format differences behind one surface.
package llmadapter

import "encoding/json"

// Role identifies who authored a Message. Ordering within a
// conversation is significant and duplicates are allowed.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType discriminates the variant held by a ContentPart.
type ContentPartType string

const (
	ContentText       ContentPartType = "text"
	ContentImage      ContentPartType = "image"
	ContentDocument   ContentPartType = "document"
	ContentToolResult ContentPartType = "tool_result"
)

// ContentPart is a tagged variant of message content. Exactly one of
// the fields relevant to Type is populated; the rest are zero.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text holds the payload for ContentText.
	Text string `json:"text,omitempty"`

	// Image fields, for ContentImage. Either URL or Base64+MimeType is set.
	URL      string `json:"url,omitempty"`
	Base64   []byte `json:"base64,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// Document holds exactly one of FilePath, URL (reused above), or
	// Base64 (reused above), per the `document` variant in spec.md.
	FilePath string `json:"filePath,omitempty"`

	// ToolResult fields, only meaningful on `tool` role messages; may
	// coexist with a text part in the same message.
	ToolName   string `json:"toolName,omitempty"`
	ToolResult any    `json:"result,omitempty"`
}

// Text is a convenience constructor for a text content part.
func Text(text string) ContentPart {
	return ContentPart{Type: ContentText, Text: text}
}

// ImageURL is a convenience constructor for a URL-referenced image part.
func ImageURL(url, mimeType string) ContentPart {
	return ContentPart{Type: ContentImage, URL: url, MimeType: mimeType}
}

// ImageBase64 is a convenience constructor for an inline image part.
func ImageBase64(data []byte, mimeType string) ContentPart {
	return ContentPart{Type: ContentImage, Base64: data, MimeType: mimeType}
}

// ToolResultPart is a convenience constructor for a tool_result content
// part, used inside `tool` role messages.
func ToolResultPart(toolName string, result any) ContentPart {
	return ContentPart{Type: ContentToolResult, ToolName: toolName, ToolResult: result}
}

// ToolCall represents one request from the model to invoke a tool. ID
// is unique within a single model response; if the provider omitted an
// id, the compat layer synthesizes call_<index> with index the
// 0-based order of the call within that response.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Reasoning carries a model's chain-of-thought/thinking output, when
// the provider and settings expose it. Metadata from multiple stream
// segments merges last-writer-wins per key, except Text, which
// concatenates in arrival order.
type Reasoning struct {
	Text     string         `json:"text"`
	Redacted bool           `json:"redacted,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MergeReasoning combines two Reasoning values per spec.md §3: Text
// concatenates in arrival order, Metadata merges last-writer-wins.
func MergeReasoning(base, next Reasoning) Reasoning {
	out := Reasoning{
		Text:     base.Text + next.Text,
		Redacted: base.Redacted || next.Redacted,
	}
	if len(base.Metadata) == 0 && len(next.Metadata) == 0 {
		return out
	}
	out.Metadata = make(map[string]any, len(base.Metadata)+len(next.Metadata))
	for k, v := range base.Metadata {
		out.Metadata[k] = v
	}
	for k, v := range next.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Usage reports token consumption. Every field is a pointer so the
// unified model preserves the distinction between "absent" and "zero"
// that providers make (spec.md §3).
type Usage struct {
	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`
	TotalTokens      *int `json:"totalTokens,omitempty"`
	ReasoningTokens  *int `json:"reasoningTokens,omitempty"`
}

// IntPtr is a small helper for building Usage literals without a local
// variable, mirroring the common `openai.Int`/`openai.Float` helper
// idiom the provider SDKs themselves use.
func IntPtr(v int) *int { return &v }

// Message is one turn in a conversation.
//
// Invariants (spec.md §3): a RoleTool message must carry ToolCallID
// (the empty string is permitted but must be treated as untrusted by
// callers); ToolCalls is only meaningful on RoleAssistant messages;
// Reasoning is only meaningful on RoleAssistant messages.
type Message struct {
	Role       Role          `json:"role"`
	Content    []ContentPart `json:"content"`
	ToolCalls  []ToolCall    `json:"toolCalls,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	Reasoning  *Reasoning    `json:"reasoning,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// SystemMessage builds a system-role message from plain text.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{Text(text)}}
}

// UserMessage builds a user-role message from plain text.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{Text(text)}}
}

// AssistantMessage builds an assistant-role message from plain text.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{Text(text)}}
}

// ToolMessage builds a tool-role message carrying the JSON-able result
// of one tool invocation.
func ToolMessage(toolCallID, toolName string, result any) Message {
	return Message{
		Role:       RoleTool,
		ToolCallID: toolCallID,
		Content:    []ContentPart{ToolResultPart(toolName, result)},
	}
}

// TextContent concatenates every text content part of the message, in
// order. It is the primary way callers read back a unified response's
// textual content.
func (m Message) TextContent() string {
	var out string
	for _, part := range m.Content {
		if part.Type == ContentText {
			out += part.Text
		}
	}
	return out
}

// Clone produces a deep-enough copy of a Message for safe mutation by
// the coordinator's working history (spec.md §3 lifecycle: the
// coordinator owns a working copy distinct from the caller's input).
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = append([]ContentPart(nil), m.Content...)
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Reasoning != nil {
		r := *m.Reasoning
		out.Reasoning = &r
	}
	return out
}

// rawArguments marshals a tool call's arguments back to a JSON string,
// the shape most provider SDKs expect on the wire for a re-issued
// assistant tool_calls entry.
func (tc ToolCall) rawArguments() string {
	if tc.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// MarshalArguments exposes rawArguments for compat packages that need
// to serialize tool call arguments back onto the wire.
func (tc ToolCall) MarshalArguments() string { return tc.rawArguments() }

// ParseArguments decodes a raw per-wire arguments string (possibly
// empty or "null") into the map form the core operates on. Per
// spec.md §4.3: missing/null arguments become {}; empty-string
// arguments become {}.
func ParseArguments(raw string) map[string]any {
	if raw == "" || raw == "null" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	if m == nil {
		return map[string]any{}
	}
	return m
}
