package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// CUEParser parses and validates CUE model documents. Every document
// is unified with the built-in model schema before decoding, so shape
// errors carry CUE positions.
type CUEParser struct {
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
}

// NewCUEParser creates a CUE model parser.
func NewCUEParser() (*CUEParser, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(modelSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile model schema: %w", err)
	}
	return &CUEParser{
		ctx:       ctx,
		schema:    schema,
		validator: validator.New(),
	}, nil
}

// Parse loads and unifies the given CUE files into one model document.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*ParsedModel, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	parsed := &ParsedModel{
		SourceFiles: sources,
		ParsedAt:    time.Now(),
	}

	var unified cue.Value
	for _, source := range sources {
		content, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %s: %w", source, err)
		}
		val := cp.ctx.CompileString(string(content), cue.Filename(source))
		if err := val.Err(); err != nil {
			parsed.Errors = append(parsed.Errors, convertCUEErrors(err)...)
			continue
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}
	if len(parsed.Errors) > 0 {
		return parsed, nil
	}

	cp.extract(unified, parsed)
	return parsed, nil
}

// ParseInline parses an inline CUE document.
func (cp *CUEParser) ParseInline(_ context.Context, content string) (*ParsedModel, error) {
	parsed := &ParsedModel{
		SourceFiles: []string{"inline"},
		ParsedAt:    time.Now(),
	}
	val := cp.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		parsed.Errors = append(parsed.Errors, convertCUEErrors(err)...)
		return parsed, nil
	}
	cp.extract(val, parsed)
	return parsed, nil
}

func (cp *CUEParser) extract(val cue.Value, parsed *ParsedModel) {
	checked := cp.schema.LookupPath(cue.ParsePath("#Model")).Unify(val)
	if err := checked.Validate(cue.Concrete(true)); err != nil {
		parsed.Errors = append(parsed.Errors, convertCUEErrors(err)...)
		return
	}

	var mf ModelFile
	if err := checked.Decode(&mf); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Message:  fmt.Sprintf("failed to decode model: %v", err),
			Severity: "error",
		})
		return
	}
	if err := cp.validator.Struct(mf); err != nil {
		parsed.Errors = append(parsed.Errors, validationErrors(err)...)
		return
	}
	parsed.Model = mf
}

// convertCUEErrors flattens a CUE error into located errors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}
		out = append(out, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}
	return out
}

// modelSchema is the CUE shape every model document must satisfy.
const modelSchema = `
#Model: {
	name: string & =~"^[a-zA-Z0-9_-]+$"

	states: [...string] & [_, ...]
	augmented_states?: [...string]
	shocks: [...string] & [_, ...]
	expectation_errors?: [...string]

	solver?: {
		method?: "gensys" | "perturbation"
		regime_switching?: bool
		gensys2_regimes?: [...int & >=2]
		temporary_policy_length?: int & >=0
		stability_divider?: number & >=0
		sparse_splicing?: bool
		uncertain_policy?: bool
		uncertain_temporary?: bool
		replace_conditions?: bool
	}

	regimes: [...#Regime] & [_, ...]

	policies?: {
		candidates?: [...string]
		weights?: [string]: [...number & >=0]
		identical_transitions?: [string]: int & >=1
	}
}

#Regime: {
	regime: int & >=1
	gamma0?: [...[...number]]
	gamma1?: [...[...number]]
	c?: [...number]
	psi?: [...[...number]]
	pi?: [...[...number]]
	identical_to?: int & >=1
	generator?: string
}
`
