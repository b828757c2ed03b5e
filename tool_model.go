package llmadapter

// UnifiedTool describes one tool/function available to the model. Name
// is the canonical (user-facing) form; providers that restrict
// identifiers receive a sanitized transform produced by package
// sanitize.
type UnifiedTool struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	ParametersJSONSchema map[string]any `json:"parametersJsonSchema"`
}

// ToolChoiceKind discriminates the ToolChoice tagged variant.
type ToolChoiceKind string

const (
	ToolChoiceAuto     ToolChoiceKind = "auto"
	ToolChoiceNone     ToolChoiceKind = "none"
	ToolChoiceSingle   ToolChoiceKind = "single"
	ToolChoiceRequired ToolChoiceKind = "required"
)

// ToolChoice controls how the model is permitted to use tools.
type ToolChoice struct {
	Kind    ToolChoiceKind `json:"kind"`
	Name    string         `json:"name,omitempty"`    // ToolChoiceSingle
	Allowed []string       `json:"allowed,omitempty"` // ToolChoiceRequired
}

// AutoToolChoice, NoneToolChoice, SingleToolChoice, and
// RequiredToolChoice are convenience constructors mirroring the
// tagged-variant shapes spec.md §3 enumerates.
func AutoToolChoice() ToolChoice { return ToolChoice{Kind: ToolChoiceAuto} }
func NoneToolChoice() ToolChoice { return ToolChoice{Kind: ToolChoiceNone} }
func SingleToolChoice(name string) ToolChoice {
	return ToolChoice{Kind: ToolChoiceSingle, Name: name}
}
func RequiredToolChoice(allowed ...string) ToolChoice {
	return ToolChoice{Kind: ToolChoiceRequired, Allowed: allowed}
}
