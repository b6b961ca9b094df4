package validation

import (
	"fmt"
	"sort"
	"time"

	"civreg/internal/event/models"
	dErrors "civreg/pkg/domain-errors"
)

// Validate checks an incoming patch against the schema in the context of the
// already-accepted declaration.
//
// The patch is partial: only fields present in it are value-checked; fields
// accepted in prior actions are not re-validated unless resent. Visibility
// conditions are evaluated against the merged declaration (existing +
// incoming), so a field hidden by the combined state is exempt from
// "required" even if the raw patch would flag it.
//
// When complete is true (final submissions: DECLARE, VALIDATE, REGISTER),
// every visible required field must hold a value in the merged declaration.
//
// The returned error lists every offending field, never only the first.
func Validate(schema FormSchema, existing models.Declaration, patch *models.Patch, complete bool) error {
	merged := existing.Apply(patch)
	if merged.Fields == nil {
		merged.Fields = map[string]any{}
	}

	var fieldErrs []dErrors.FieldError

	if patch != nil {
		for _, path := range sortedPaths(patch.Fields) {
			field, ok := schema.Field(path)
			if !ok {
				fieldErrs = append(fieldErrs, dErrors.FieldError{
					Path: path, Reason: "unknown field",
				})
				continue
			}
			if !field.visible(merged.Fields) {
				// Hidden fields are exempt from all checks; the value still
				// merges but cannot fail the submission.
				continue
			}
			if reason, ok := checkValue(field, patch.Fields[path]); !ok {
				fieldErrs = append(fieldErrs, dErrors.FieldError{Path: path, Reason: reason})
			}
		}
	}

	if complete {
		for _, field := range schema.Fields {
			if !field.Required || !field.visible(merged.Fields) {
				continue
			}
			if v, ok := merged.Fields[field.ID]; !ok || isEmpty(v) {
				fieldErrs = append(fieldErrs, dErrors.FieldError{
					Path: field.ID, Reason: "required field is missing",
				})
			}
		}
	}

	if len(fieldErrs) == 0 {
		return nil
	}
	return dErrors.NewValidation(dedupe(fieldErrs))
}

// checkValue verifies a present value against the field's declared type.
func checkValue(field Field, v any) (string, bool) {
	if v == nil {
		// Explicit null clears the field; emptiness is handled by the
		// required check, not here.
		return "", true
	}
	switch field.Type {
	case TypeText:
		if _, ok := v.(string); !ok {
			return "expected a string", false
		}
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return "expected a number", false
		}
	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return "expected a date string", false
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "expected a date in YYYY-MM-DD format", false
		}
	case TypeSelect:
		s, ok := v.(string)
		if !ok {
			return "expected a string option", false
		}
		for _, opt := range field.Options {
			if s == opt {
				return "", true
			}
		}
		return fmt.Sprintf("%q is not one of the allowed options", s), false
	case TypeCheckbox:
		if _, ok := v.(bool); !ok {
			return "expected a boolean", false
		}
	case TypeFile:
		if !isFileValue(v) {
			return "expected a file reference", false
		}
	}
	return "", true
}

// isFileValue accepts a single file reference or an array of them.
func isFileValue(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		name, ok := t["filename"].(string)
		return ok && name != ""
	case []any:
		if len(t) == 0 {
			return false
		}
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return false
			}
			if name, ok := m["filename"].(string); !ok || name == "" {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func sortedPaths(fields map[string]any) []string {
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dedupe drops repeated (path, reason) pairs; a field resent in the patch and
// also missing from the merged view should be reported once.
func dedupe(in []dErrors.FieldError) []dErrors.FieldError {
	seen := make(map[dErrors.FieldError]struct{}, len(in))
	out := in[:0]
	for _, fe := range in {
		if _, dup := seen[fe]; dup {
			continue
		}
		seen[fe] = struct{}{}
		out = append(out, fe)
	}
	return out
}
