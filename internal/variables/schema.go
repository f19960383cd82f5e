package variables

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/jsonschema"

	"github.com/TOSIT-IO/tdp-lib/internal/tdperrors"
)

// SchemaValidator compiles each service's tdp_vars_schema/<service>.json
// file into a CUE constraint with cuelang.org/go's encoding/jsonschema
// extractor and validates deep-merged variable documents against it.
// This is the "external JSON-schema validator" spec.md §4.3 treats as an
// adapter; the teacher's CUE dependency is repurposed here for the one
// capability (constraint evaluation) that survives the domain change —
// see SPEC_FULL.md Part C.
type SchemaValidator struct {
	ctx *cue.Context
}

// NewSchemaValidator returns a validator with a fresh CUE context.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{ctx: cuecontext.New()}
}

// compile loads and compiles the JSON Schema file at path into a CUE
// constraint value.
func (s *SchemaValidator) compile(path string) (cue.Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("reading schema %s: %w", path, err)
	}

	schemaVal := s.ctx.CompileBytes(raw, cue.Filename(path))
	if err := schemaVal.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling schema %s as CUE: %w", path, err)
	}

	extracted, err := jsonschema.Extract(schemaVal, &jsonschema.Config{})
	if err != nil {
		return cue.Value{}, fmt.Errorf("extracting JSON schema %s: %w", path, err)
	}
	return s.ctx.BuildExpr(extracted), nil
}

// Validate runs service's bound schema files against document, which
// the caller has already merged from the default and service files (in
// deterministic lexicographic order; see ClusterVariables.Validate),
// per spec.md §4.3. Every violation is accumulated rather than
// short-circuiting on the first error.
func (s *SchemaValidator) Validate(service string, schemaPaths []string, document map[string]any) error {
	if len(schemaPaths) == 0 {
		return nil
	}

	raw, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshaling document for %s: %w", service, err)
	}
	docVal := s.ctx.CompileBytes(raw)
	if err := docVal.Err(); err != nil {
		return fmt.Errorf("compiling document for %s: %w", service, err)
	}

	var errs []string
	sorted := append([]string{}, schemaPaths...)
	sort.Strings(sorted)
	for _, path := range sorted {
		schemaVal, err := s.compile(path)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		unified := schemaVal.Unify(docVal)
		if err := unified.Validate(cue.Concrete(false), cue.All()); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
		}
	}

	if len(errs) > 0 {
		return &tdperrors.SchemaValidationError{Service: service, Errors: errs}
	}
	return nil
}
