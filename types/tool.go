package types

import "context"

// Tool is the flat, normalized plugin record the surrounding agent
// consumes. Both plain tool objects and tool providers collapse to
// this shape at registration time, so the capability-set duality never
// reaches the engine.
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  *ParameterSchema `json:"parameters,omitempty"`
	Execute     ExecuteFunc      `json:"-"`
}

// ExecuteFunc runs a tool with validated parameters.
type ExecuteFunc func(ctx context.Context, params map[string]any) ToolResult

// ToolResult represents the outcome of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolProvider exposes a set of tools as a unit (the class-with-getTools
// half of the plugin duality).
type ToolProvider interface {
	GetTools() []Tool
}

// NormalizeTools flattens plain tools and tool providers into a single
// list, validating every parameter schema and rejecting duplicate
// names. Accepted source kinds: Tool, []Tool, ToolProvider.
func NormalizeTools(sources ...any) ([]Tool, error) {
	var out []Tool
	seen := make(map[string]struct{})

	appendTool := func(t Tool) error {
		if t.Name == "" {
			return NewError(ErrConfiguration, "tool name is required")
		}
		if _, dup := seen[t.Name]; dup {
			return NewErrorf(ErrConfiguration, "duplicate tool name %q", t.Name)
		}
		if t.Parameters != nil {
			if err := t.Parameters.CheckSchema(); err != nil {
				return NewErrorf(ErrConfiguration, "tool %q: %v", t.Name, err)
			}
		}
		seen[t.Name] = struct{}{}
		out = append(out, t)
		return nil
	}

	for _, src := range sources {
		switch v := src.(type) {
		case Tool:
			if err := appendTool(v); err != nil {
				return nil, err
			}
		case []Tool:
			for _, t := range v {
				if err := appendTool(t); err != nil {
					return nil, err
				}
			}
		case ToolProvider:
			for _, t := range v.GetTools() {
				if err := appendTool(t); err != nil {
					return nil, err
				}
			}
		default:
			return nil, NewErrorf(ErrConfiguration, "unsupported tool source %T", src)
		}
	}
	return out, nil
}
