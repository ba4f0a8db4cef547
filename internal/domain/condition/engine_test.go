package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/store-approval/internal/domain/entity"
)

func cond(field string, op entity.Operator, value any, logic entity.Logic) entity.ApprovalCondition {
	return entity.ApprovalCondition{Field: field, Operator: op, Value: value, Logic: logic}
}

func TestMatch_Operators(t *testing.T) {
	data := map[string]any{
		"budget":   float64(600000),
		"amount":   "1200.50",
		"city":     "Shanghai",
		"urgent":   true,
		"tags":     []any{"flagship", "mall"},
		"opening":  "2024-06-01",
		"store":    map[string]any{"area": 180, "floors": []any{map[string]any{"level": 1}}},
		"optional": nil,
	}

	tests := []struct {
		name string
		c    entity.ApprovalCondition
		want bool
	}{
		{"eq number", cond("budget", entity.OpEq, 600000, ""), true},
		{"eq numeric string coerced", cond("amount", entity.OpEq, 1200.5, ""), true},
		{"eq string", cond("city", entity.OpEq, "Shanghai", ""), true},
		{"eq string mismatch", cond("city", entity.OpEq, "Beijing", ""), false},
		{"eq bool", cond("urgent", entity.OpEq, true, ""), true},
		{"eq bool vs string", cond("urgent", entity.OpEq, "true", ""), false},
		{"gt", cond("budget", entity.OpGt, 500000, ""), true},
		{"gt equal is false", cond("budget", entity.OpGt, 600000, ""), false},
		{"gte equal", cond("budget", entity.OpGte, 600000, ""), true},
		{"lt string number", cond("amount", entity.OpLt, "2000", ""), true},
		{"lte", cond("amount", entity.OpLte, 1200.5, ""), true},
		{"gt non numeric", cond("city", entity.OpGt, 1, ""), false},
		{"gt bool never orders", cond("urgent", entity.OpGt, 0, ""), false},
		{"date ordering", cond("opening", entity.OpLt, "2024-07-01", ""), true},
		{"in list", cond("city", entity.OpIn, []any{"Beijing", "Shanghai"}, ""), true},
		{"in typed list", cond("city", entity.OpIn, []string{"Beijing"}, ""), false},
		{"in numbers", cond("store.area", entity.OpIn, []any{120, 180}, ""), true},
		{"in scalar value", cond("city", entity.OpIn, "Shanghai", ""), false},
		{"contains substring", cond("city", entity.OpContains, "hang", ""), true},
		{"contains list element", cond("tags", entity.OpContains, "mall", ""), true},
		{"contains list missing", cond("tags", entity.OpContains, "outlet", ""), false},
		{"nested path", cond("store.area", entity.OpGte, 150, ""), true},
		{"array index path", cond("store.floors.0.level", entity.OpEq, 1, ""), true},
		{"array index out of range", cond("store.floors.3.level", entity.OpEq, 1, ""), false},
		{"unknown operator", cond("budget", entity.Operator("between"), 1, ""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(data, tt.c))
		})
	}
}

func TestMatch_MissingFieldIsAlwaysFalse(t *testing.T) {
	data := map[string]any{"optional": nil}
	for _, op := range []entity.Operator{entity.OpEq, entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte, entity.OpIn, entity.OpContains} {
		t.Run(string(op), func(t *testing.T) {
			assert.False(t, Match(data, cond("missing", op, 1, "")))
			assert.False(t, Match(data, cond("optional", op, nil, "")))
			assert.False(t, Match(data, cond("missing.deeper", op, []any{1}, "")))
		})
	}
}

func TestEvaluate_EmptyIsTrue(t *testing.T) {
	assert.True(t, Evaluate(map[string]any{}, nil))
}

func TestEvaluate_LogicComesFromPreviousCondition(t *testing.T) {
	data := map[string]any{"a": 1, "b": 2, "c": 3}
	isTrue := func(field string) entity.ApprovalCondition { return cond(field, entity.OpEq, data[field], "") }
	isFalse := func(field string) entity.ApprovalCondition { return cond(field, entity.OpEq, -1, "") }

	tests := []struct {
		name  string
		conds []entity.ApprovalCondition
		want  bool
	}{
		{
			name:  "single condition ignores its own or",
			conds: []entity.ApprovalCondition{withLogic(isFalse("a"), entity.LogicOr)},
			want:  false,
		},
		{
			name:  "or on first joins second",
			conds: []entity.ApprovalCondition{withLogic(isFalse("a"), entity.LogicOr), isTrue("b")},
			want:  true,
		},
		{
			name:  "or on second does not affect the second pair",
			conds: []entity.ApprovalCondition{isFalse("a"), withLogic(isTrue("b"), entity.LogicOr)},
			want:  false,
		},
		{
			name:  "empty logic means and",
			conds: []entity.ApprovalCondition{isTrue("a"), isFalse("b")},
			want:  false,
		},
		{
			name: "left to right without precedence",
			// ((true or false) and false) or true
			conds: []entity.ApprovalCondition{
				withLogic(isTrue("a"), entity.LogicOr),
				withLogic(isFalse("b"), entity.LogicAnd),
				withLogic(isFalse("c"), entity.LogicOr),
				isTrue("c"),
			},
			want: true,
		},
		{
			name: "last logic is never read",
			conds: []entity.ApprovalCondition{
				withLogic(isTrue("a"), entity.LogicAnd),
				withLogic(isFalse("b"), entity.LogicOr),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(data, tt.conds))
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	data := map[string]any{"budget": 600000, "store": map[string]any{"area": 100}}
	conds := []entity.ApprovalCondition{cond("budget", entity.OpGt, 500000, entity.LogicAnd), cond("store.area", entity.OpLt, 200, "")}

	first := Evaluate(data, conds)
	second := Evaluate(data, conds)

	assert.True(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"budget": 600000, "store": map[string]any{"area": 100}}, data)
}

func TestValidPath(t *testing.T) {
	valid := []string{"budget", "store.area", "items.0.amount", "_x.y_1"}
	invalid := []string{"", ".budget", "budget.", "a..b", "0abc", "a.b-c", "a b"}

	for _, p := range valid {
		assert.True(t, ValidPath(p), p)
	}
	for _, p := range invalid {
		assert.False(t, ValidPath(p), p)
	}
}

func withLogic(c entity.ApprovalCondition, l entity.Logic) entity.ApprovalCondition {
	c.Logic = l
	return c
}
