package blocks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	stdstrings "strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

type stringTransformConfig struct {
	Operation string `json:"operation"`
	// Old, New, and Count apply to the replace operation.
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
	Count *int   `json:"count,omitempty"`
	// Pattern applies to regex_extract.
	Pattern string `json:"pattern,omitempty"`
}

// StringTransform applies one configured operation to its "text" input and
// emits the transformed value on "result".
func StringTransform() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "strings.transform",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "text", Type: graph.TypeString}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeAny},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg stringTransformConfig
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("invalid strings.transform config: %w", err)
			}
			text, err := stringInput(inputs, "text")
			if err != nil {
				return nil, err
			}
			result, err := transform(cfg, text)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": result}, nil
		},
	}
}

func transform(cfg stringTransformConfig, text string) (any, error) {
	switch cfg.Operation {
	case "to_upper":
		return stdstrings.ToUpper(text), nil
	case "to_lower":
		return stdstrings.ToLower(text), nil
	case "title_case":
		return cases.Title(language.Und).String(text), nil
	case "trim":
		return stdstrings.TrimSpace(text), nil
	case "length":
		return float64(len([]rune(text))), nil
	case "replace":
		count := -1
		if cfg.Count != nil {
			count = *cfg.Count
		}
		return stdstrings.Replace(text, cfg.Old, cfg.New, count), nil
	case "regex_extract":
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", cfg.Pattern, err)
		}
		matches := re.FindAllString(text, -1)
		out := make([]any, len(matches))
		for i, m := range matches {
			out[i] = m
		}
		return out, nil
	case "base64_encode":
		return base64.StdEncoding.EncodeToString([]byte(text)), nil
	case "base64_decode":
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("base64_decode failed: %w", err)
		}
		return string(decoded), nil
	}
	return nil, fmt.Errorf("unknown string operation %q", cfg.Operation)
}

type stringConcatConfig struct {
	Separator string `json:"separator,omitempty"`
}

// StringConcat joins its "left" and "right" inputs with an optional
// configured separator.
func StringConcat() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "strings.concat",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "left", Type: graph.TypeString}},
			{PortDecl: graph.PortDecl{Name: "right", Type: graph.TypeString}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeString},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg stringConcatConfig
			if len(config) > 0 {
				if err := json.Unmarshal(config, &cfg); err != nil {
					return nil, fmt.Errorf("invalid strings.concat config: %w", err)
				}
			}
			left, err := stringInput(inputs, "left")
			if err != nil {
				return nil, err
			}
			right, err := stringInput(inputs, "right")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": left + cfg.Separator + right}, nil
		},
	}
}

func stringInput(inputs map[string]any, name string) (string, error) {
	v, ok := inputs[name]
	if !ok {
		return "", fmt.Errorf("missing input %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %q: expected string, got %T", name, v)
	}
	return s, nil
}
