// Package prompts loads the few-shot example bundle and the JSON-schema
// validators that constrain reasoner and synthesizer replies.
package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// ReasonerExample is one few-shot pair for the reasoner prompt.
type ReasonerExample struct {
	UserQuery      string          `json:"user_query"`
	SchemaSlice    json.RawMessage `json:"schema_slice"`
	ExpectedOutput json.RawMessage `json:"expected_output"`
}

// SynthesizerExample is one few-shot pair for the synthesizer prompt.
type SynthesizerExample struct {
	UserQuery      string          `json:"user_query"`
	SQL            string          `json:"sql"`
	Rows           json.RawMessage `json:"rows"`
	Metadata       json.RawMessage `json:"metadata"`
	ExpectedOutput string          `json:"expected_output"`
}

// Examples is the on-disk example bundle.
type Examples struct {
	ReasonerExamples    []ReasonerExample    `json:"reasoner_examples"`
	SynthesizerExamples []SynthesizerExample `json:"synthesizer_examples"`
}

// Resources bundles the examples with the compiled Draft-7 validators.
// Everything is read from disk once at startup and reused across requests.
type Resources struct {
	Examples             Examples
	ReasonerValidator    *jsonschema.Schema
	SynthesizerValidator *jsonschema.Schema
}

// Load reads the example bundle and compiles both response schemas.
func Load(cfg config.PromptsConfig) (*Resources, error) {
	data, err := os.ReadFile(cfg.ExamplesPath)
	if err != nil {
		return nil, fmt.Errorf("read prompt examples: %w", err)
	}

	var examples Examples
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("decode prompt examples: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	reasoner, err := compiler.Compile(cfg.ReasonerSchema)
	if err != nil {
		return nil, fmt.Errorf("compile reasoner schema: %w", err)
	}
	synthesizer, err := compiler.Compile(cfg.SynthesizerSchema)
	if err != nil {
		return nil, fmt.Errorf("compile synthesizer schema: %w", err)
	}

	return &Resources{
		Examples:             examples,
		ReasonerValidator:    reasoner,
		SynthesizerValidator: synthesizer,
	}, nil
}

// ValidationDetails flattens a schema validation error into a single line
// listing every leaf violation, joined by "; ".
func ValidationDetails(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	leaves := collectLeaves(ve)
	parts := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", loc, leaf.Message))
	}
	return strings.Join(parts, "; ")
}

func collectLeaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, collectLeaves(cause)...)
	}
	return out
}
