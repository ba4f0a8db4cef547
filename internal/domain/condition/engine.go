// Package condition evaluates branch predicates against instance form data.
package condition

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

var pathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|[0-9]+))*$`)

// ValidPath reports whether path is a syntactically valid dot path
func ValidPath(path string) bool {
	return pathPattern.MatchString(path)
}

// Evaluate folds the conditions left to right starting from true.
// Each condition after the first is joined by the logic of the condition before it;
// the last condition's own logic is never read. An empty list is true.
func Evaluate(formData map[string]any, conditions []entity.ApprovalCondition) bool {
	acc := true
	for i, c := range conditions {
		r := Match(formData, c)
		if i == 0 {
			acc = r
			continue
		}
		if conditions[i-1].Logic == entity.LogicOr {
			acc = acc || r
		} else {
			acc = acc && r
		}
	}
	return acc
}

// Match evaluates one condition. A missing field never matches.
func Match(formData map[string]any, c entity.ApprovalCondition) bool {
	actual, ok := Lookup(formData, c.Field)
	if !ok || actual == nil {
		return false
	}
	switch c.Operator {
	case entity.OpEq:
		return equal(actual, c.Value)
	case entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte:
		cmp, ok := order(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Operator {
		case entity.OpGt:
			return cmp > 0
		case entity.OpGte:
			return cmp >= 0
		case entity.OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case entity.OpIn:
		for _, v := range toList(c.Value) {
			if equal(actual, v) {
				return true
			}
		}
		return false
	case entity.OpContains:
		if s, ok := actual.(string); ok {
			return strings.Contains(s, cast.ToString(c.Value))
		}
		for _, v := range toList(actual) {
			if equal(v, c.Value) {
				return true
			}
		}
		return false
	}
	return false
}

// Lookup resolves a dot path; numeric segments index into lists
func Lookup(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ab, aIsBool := a.(bool)
	bb, bIsBool := b.(bool)
	if aIsBool || bIsBool {
		if aIsBool && bIsBool {
			return ab == bb
		}
		return false
	}
	if isNumber(a) || isNumber(b) {
		af, errA := cast.ToFloat64E(a)
		bf, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			return af == bf
		}
		return false
	}
	as, errA := cast.ToStringE(a)
	bs, errB := cast.ToStringE(b)
	if errA == nil && errB == nil {
		return as == bs
	}
	return reflect.DeepEqual(a, b)
}

// order compares numerically, falling back to RFC 3339 dates when both sides are strings
func order(a, b any) (int, bool) {
	if _, ok := a.(bool); ok {
		return 0, false
	}
	if _, ok := b.(bool); ok {
		return 0, false
	}
	af, errA := cast.ToFloat64E(a)
	bf, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, okA := a.(string)
	bs, okB := b.(string)
	if !okA || !okB {
		return 0, false
	}
	at, okA := parseDate(as)
	bt, okB := parseDate(bs)
	if !okA || !okB {
		return 0, false
	}
	return at.Compare(bt), true
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate parses the date formats condition values and date fields accept
func ParseDate(s string) (time.Time, bool) {
	return parseDate(s)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// IsNumber reports whether v is a Go numeric value
func IsNumber(v any) bool {
	return isNumber(v)
}

// IsList reports whether v is a slice or array value
func IsList(v any) bool {
	return toList(v) != nil
}

// List returns the elements of a slice or array value, nil for anything else
func List(v any) []any {
	return toList(v)
}
