// Package form validates form schemas and the form data submitted against them.
package form

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/store-approval/internal/domain/condition"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/pkg/utils"
)

var validate = validator.New()

// ValidateSchema checks the schema declaration itself
func ValidateSchema(schema entity.FormSchema) []entity.Violation {
	var out []entity.Violation
	seen := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		path := "form_schema." + f.Name
		if err := utils.ValidateIdentifier(f.Name); err != nil {
			out = append(out, entity.Violation{Field: path, Message: err.Error()})
			continue
		}
		if seen[f.Name] {
			out = append(out, entity.Violation{Field: path, Message: "duplicate field name"})
		}
		seen[f.Name] = true
		if !f.Type.IsValid() {
			out = append(out, entity.Violation{Field: path, Message: fmt.Sprintf("unknown field type %q", f.Type)})
		}
		if f.Validation != "" {
			if err := checkTag(f.Validation); err != nil {
				out = append(out, entity.Violation{Field: path, Message: err.Error()})
			}
		}
	}
	for _, f := range schema.Fields {
		if f.VisibleWhen == nil {
			continue
		}
		path := "form_schema." + f.Name
		switch {
		case f.VisibleWhen.Field == f.Name:
			out = append(out, entity.Violation{Field: path, Message: "visibility rule refers to the field itself"})
		case !seen[f.VisibleWhen.Field]:
			out = append(out, entity.Violation{Field: path, Message: fmt.Sprintf("visibility rule refers to unknown field %q", f.VisibleWhen.Field)})
		}
	}
	return out
}

// checkTag reports tags the validator does not know; validator panics on those
func checkTag(tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation rule %q: %v", tag, r)
		}
	}()
	_ = validate.Var("", tag)
	return nil
}

// ValidateData checks submitted form data against the schema.
// Hidden fields are neither required nor validated; undeclared keys are kept as-is.
func ValidateData(schema entity.FormSchema, data map[string]any) error {
	var violations []entity.Violation
	for _, f := range schema.Fields {
		if !visible(f, data) {
			continue
		}
		v, present := data[f.Name]
		if !present || v == nil {
			if f.Required {
				violations = append(violations, entity.Violation{Field: f.Name, Message: "is required"})
			}
			continue
		}
		if msg := checkType(f.Type, v); msg != "" {
			violations = append(violations, entity.Violation{Field: f.Name, Message: msg})
			continue
		}
		if f.Validation != "" {
			if err := safeVar(v, f.Validation); err != nil {
				violations = append(violations, entity.Violation{Field: f.Name, Message: describe(err)})
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.String())
	}
	verr := entity.NewValidationError("form data invalid: %s", strings.Join(parts, "; "))
	verr.Violations = violations
	return verr
}

func visible(f entity.FormField, data map[string]any) bool {
	if f.VisibleWhen == nil {
		return true
	}
	return condition.Match(data, entity.ApprovalCondition{
		Field:    f.VisibleWhen.Field,
		Operator: entity.OpEq,
		Value:    f.VisibleWhen.Equals,
	})
}

func checkType(t entity.FieldType, v any) string {
	switch t {
	case entity.FieldString:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case entity.FieldNumber:
		if !condition.IsNumber(v) {
			return "must be a number"
		}
	case entity.FieldBoolean:
		if _, ok := v.(bool); !ok {
			return "must be a boolean"
		}
	case entity.FieldDate:
		s, ok := v.(string)
		if !ok {
			return "must be a date string"
		}
		if _, ok := condition.ParseDate(s); !ok {
			return "must be a date in YYYY-MM-DD or RFC 3339 form"
		}
	case entity.FieldArray:
		if !condition.IsList(v) {
			return "must be an array"
		}
	case entity.FieldObject:
		if _, ok := v.(map[string]any); !ok {
			return "must be an object"
		}
	}
	return ""
}

func safeVar(v any, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid validation rule %q: %v", tag, r)
		}
	}()
	return validate.Var(v, tag)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed rule %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed rule %s", fe.Tag())
	}
	return err.Error()
}
