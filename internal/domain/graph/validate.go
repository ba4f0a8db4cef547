package graph

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cast"

	"github.com/garyjia/store-approval/internal/domain/condition"
	"github.com/garyjia/store-approval/internal/domain/entity"
	"github.com/garyjia/store-approval/internal/domain/form"
	"github.com/garyjia/store-approval/pkg/utils"
)

// Report collects validation errors and warnings; warnings never block activation
type Report struct {
	Errors   []entity.Violation `json:"errors"`
	Warnings []entity.Violation `json:"warnings"`
}

// Valid reports whether the report holds no errors
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Report) errorf(node entity.NodeID, field, format string, args ...any) {
	r.Errors = append(r.Errors, entity.Violation{NodeID: node, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) warnf(node entity.NodeID, field, format string, args ...any) {
	r.Warnings = append(r.Warnings, entity.Violation{NodeID: node, Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateTemplate runs every structural and predicate check on a template
func ValidateTemplate(t *entity.ApprovalTemplate) Report {
	r := Report{Errors: []entity.Violation{}, Warnings: []entity.Violation{}}
	if strings.TrimSpace(t.Name) == "" {
		r.errorf("", "name", "template name is required")
	}
	if !t.BusinessType.IsValid() {
		r.errorf("", "business_type", "unknown business type %q", t.BusinessType)
	}
	r.Errors = append(r.Errors, form.ValidateSchema(t.FormSchema)...)
	validateNodes(&r, t.Nodes, t.FormSchema)
	return r
}

func validateNodes(r *Report, nodes []entity.ApprovalNode, schema entity.FormSchema) {
	if len(nodes) == 0 {
		r.errorf("", "nodes", "template has no nodes")
		return
	}

	byID := make(map[entity.NodeID]*entity.ApprovalNode, len(nodes))
	var starts, ends []entity.NodeID
	for i := range nodes {
		n := &nodes[i]
		if err := utils.ValidateIdentifier(string(n.ID)); err != nil {
			r.errorf(n.ID, "id", "%v", err)
		}
		if _, dup := byID[n.ID]; dup {
			r.errorf(n.ID, "id", "duplicate node id")
			continue
		}
		byID[n.ID] = n
		switch n.Type {
		case entity.NodeTypeStart:
			starts = append(starts, n.ID)
		case entity.NodeTypeEnd:
			ends = append(ends, n.ID)
		}
		validateNode(r, n, schema)
	}

	if len(starts) != 1 {
		r.errorf("", "nodes", "template must have exactly one start node, found %d", len(starts))
	}
	if len(ends) == 0 {
		r.errorf("", "nodes", "template must have at least one end node")
	}

	// Edges to unknown nodes are reported once and ignored by the graph walks below
	edges := make(map[entity.NodeID][]entity.NodeID, len(byID))
	for i := range nodes {
		n := &nodes[i]
		if byID[n.ID] != n {
			continue
		}
		for _, to := range edgesOf(n) {
			if _, ok := byID[to]; !ok {
				r.errorf(n.ID, "connections", "connection to unknown node %q", to)
				continue
			}
			edges[n.ID] = append(edges[n.ID], to)
		}
	}

	if len(starts) == 1 {
		reached := walk([]entity.NodeID{starts[0]}, edges)
		for i := range nodes {
			if id := nodes[i].ID; byID[id] == &nodes[i] && !reached[id] {
				r.errorf(id, "", "node is unreachable from start")
			}
		}
	}

	if len(ends) > 0 {
		reverse := make(map[entity.NodeID][]entity.NodeID, len(edges))
		for from, tos := range edges {
			for _, to := range tos {
				reverse[to] = append(reverse[to], from)
			}
		}
		canEnd := walk(ends, reverse)
		for i := range nodes {
			n := &nodes[i]
			if byID[n.ID] != n || n.Type == entity.NodeTypeEnd {
				continue
			}
			if !canEnd[n.ID] {
				r.errorf(n.ID, "", "no path from node to an end node")
			}
		}
	}

	for _, cycle := range findCycles(nodes, byID, edges) {
		r.errorf(cycle[0], "connections", "cycle detected: %s", joinIDs(cycle))
	}
}

func validateNode(r *Report, n *entity.ApprovalNode, schema entity.FormSchema) {
	if n.Approval != nil && n.Type != entity.NodeTypeApproval {
		r.errorf(n.ID, "approval", "only approval nodes carry approval settings")
	}
	if len(n.Branches) > 0 && n.Type != entity.NodeTypeCondition {
		r.errorf(n.ID, "branches", "only condition nodes carry branches")
	}

	switch n.Type {
	case entity.NodeTypeStart:
		if len(n.Connections) != 1 {
			r.errorf(n.ID, "connections", "start node must have exactly one connection, found %d", len(n.Connections))
		}
	case entity.NodeTypeEnd:
		if len(n.Connections) != 0 {
			r.errorf(n.ID, "connections", "end node must not have connections")
		}
	case entity.NodeTypeApproval:
		if len(n.Connections) != 1 {
			r.errorf(n.ID, "connections", "approval node must have exactly one connection, found %d", len(n.Connections))
		}
		validateApproval(r, n)
	case entity.NodeTypeCondition:
		validateBranches(r, n, schema)
	default:
		r.errorf(n.ID, "type", "unknown node type %q", n.Type)
	}
}

func validateApproval(r *Report, n *entity.ApprovalNode) {
	a := n.Approval
	if a == nil {
		r.errorf(n.ID, "approval", "approval node needs approval settings")
		return
	}
	if !a.Policy.IsValid() {
		r.errorf(n.ID, "approval.policy", "unknown approval policy %q", a.Policy)
	}
	if a.TimeLimitHours < 0 {
		r.errorf(n.ID, "approval.time_limit_hours", "time limit must not be negative")
	}
	spec := a.Approvers
	switch spec.Kind {
	case entity.ApproverFixed:
		distinct := dedupe(spec.UserIDs)
		if len(distinct) == 0 {
			r.errorf(n.ID, "approval.approvers.user_ids", "fixed approvers need at least one user id")
		} else if a.Policy == entity.PolicyMajority && len(distinct) < 3 {
			r.warnf(n.ID, "approval.policy", "majority policy with %d approver(s) behaves like all", len(distinct))
		}
	case entity.ApproverRole:
		if strings.TrimSpace(spec.RoleID) == "" {
			r.errorf(n.ID, "approval.approvers.role_id", "role approvers need a role id")
		}
	case entity.ApproverDepartmentManager, entity.ApproverInitiatorManager:
	default:
		r.errorf(n.ID, "approval.approvers.kind", "unknown approver kind %q", spec.Kind)
	}
}

func validateBranches(r *Report, n *entity.ApprovalNode, schema entity.FormSchema) {
	if len(n.Connections) > 0 {
		r.errorf(n.ID, "connections", "condition node routes through branches, not connections")
	}
	if len(n.Branches) == 0 {
		r.errorf(n.ID, "branches", "condition node has no branches")
		return
	}
	defaultAt := -1
	for j, b := range n.Branches {
		path := fmt.Sprintf("branches[%d]", j)
		if defaultAt >= 0 {
			r.errorf(n.ID, path, "branch can never be taken: default branch at branches[%d] comes first", defaultAt)
		}
		if b.IsDefault() {
			if defaultAt < 0 {
				defaultAt = j
			}
			continue
		}
		for k, c := range b.Conditions {
			validateCondition(r, n.ID, fmt.Sprintf("%s.conditions[%d]", path, k), c, schema)
		}
		if contradictory(b.Conditions) {
			r.errorf(n.ID, path, "branch can never be taken: its conditions contradict each other")
		} else if field, ok := shadowed(b.Conditions, n.Branches[:j]); ok {
			r.errorf(n.ID, path, "branch can never be taken: earlier branches already match every %s it accepts", field)
		}
	}
	if defaultAt < 0 {
		r.warnf(n.ID, "branches", "no default branch; form data matching no branch will hold the instance")
	}
}

func validateCondition(r *Report, node entity.NodeID, path string, c entity.ApprovalCondition, schema entity.FormSchema) {
	if !condition.ValidPath(c.Field) {
		r.errorf(node, path+".field", "invalid field path %q", c.Field)
		return
	}
	if !c.Operator.IsValid() {
		r.errorf(node, path+".operator", "unknown operator %q", c.Operator)
		return
	}
	if c.Logic != "" && c.Logic != entity.LogicAnd && c.Logic != entity.LogicOr {
		r.errorf(node, path+".logic", "unknown logic %q", c.Logic)
	}
	if c.Value == nil {
		r.errorf(node, path+".value", "value is required")
		return
	}
	root, _, nested := strings.Cut(c.Field, ".")
	field, ok := schema.Field(root)
	if !ok {
		r.warnf(node, path+".field", "field %q is not declared in the form schema", root)
		return
	}
	if nested {
		if field.Type != entity.FieldObject && field.Type != entity.FieldArray {
			r.errorf(node, path+".field", "field %q is a %s and has no nested values", root, field.Type)
		}
		return
	}
	if msg := checkOperand(field.Type, c.Operator, c.Value); msg != "" {
		r.errorf(node, path, "%s", msg)
	}
}

// checkOperand returns a message when operator and value cannot apply to the field type
func checkOperand(ft entity.FieldType, op entity.Operator, v any) string {
	if op == entity.OpIn {
		if !condition.IsList(v) {
			return "operator in needs a list value"
		}
		if ft == entity.FieldArray || ft == entity.FieldObject {
			return fmt.Sprintf("operator in does not apply to %s fields", ft)
		}
		for _, item := range condition.List(v) {
			if msg := scalarFits(ft, item); msg != "" {
				return msg
			}
		}
		return ""
	}
	switch ft {
	case entity.FieldNumber:
		if op == entity.OpContains {
			return "operator contains does not apply to number fields"
		}
	case entity.FieldString:
		if op.IsOrdering() {
			return fmt.Sprintf("operator %s does not apply to string fields", op)
		}
	case entity.FieldBoolean:
		if op != entity.OpEq {
			return fmt.Sprintf("operator %s does not apply to boolean fields", op)
		}
	case entity.FieldDate:
		if op == entity.OpContains {
			return "operator contains does not apply to date fields"
		}
	case entity.FieldArray:
		if op != entity.OpContains {
			return fmt.Sprintf("operator %s does not apply to array fields", op)
		}
		if condition.IsList(v) {
			return "contains on an array field needs a single value"
		}
		return ""
	case entity.FieldObject:
		return "compare a nested path of an object field, not the object itself"
	}
	return scalarFits(ft, v)
}

func scalarFits(ft entity.FieldType, v any) string {
	switch ft {
	case entity.FieldNumber:
		if !isNumeric(v) {
			return fmt.Sprintf("value %v is not a number", v)
		}
	case entity.FieldString:
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("value %v is not a string", v)
		}
	case entity.FieldBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("value %v is not a boolean", v)
		}
	case entity.FieldDate:
		s, ok := v.(string)
		if !ok {
			return fmt.Sprintf("value %v is not a date", v)
		}
		if _, ok := condition.ParseDate(s); !ok {
			return fmt.Sprintf("value %q is not a date", s)
		}
	}
	return ""
}

func isNumeric(v any) bool {
	if condition.IsNumber(v) {
		return true
	}
	if s, ok := v.(string); ok {
		_, err := cast.ToFloat64E(s)
		return err == nil
	}
	return false
}

type interval struct {
	lo, hi         float64
	hasLo, hasHi   bool
	loOpen, hiOpen bool
	eq             []string
}

// contradictory detects AND-only condition lists that can never hold:
// disjoint numeric bounds or two different eq values on one field.
func contradictory(conds []entity.ApprovalCondition) bool {
	if !andOnly(conds) {
		return false
	}
	fields := make(map[string]*interval)
	for _, c := range conds {
		iv := fields[c.Field]
		if iv == nil {
			iv = &interval{}
			fields[c.Field] = iv
		}
		if c.Operator == entity.OpEq {
			iv.eq = append(iv.eq, cast.ToString(c.Value))
			if f, err := cast.ToFloat64E(c.Value); err == nil && condition.IsNumber(c.Value) {
				iv.lower(f, false)
				iv.upper(f, false)
			}
			continue
		}
		if !c.Operator.IsOrdering() || !condition.IsNumber(c.Value) {
			continue
		}
		iv.bound(c.Operator, cast.ToFloat64(c.Value))
	}
	for _, iv := range fields {
		if len(dedupe(iv.eq)) > 1 {
			return true
		}
		if iv.hasLo && iv.hasHi {
			if iv.lo > iv.hi || (iv.lo == iv.hi && (iv.loOpen || iv.hiOpen)) {
				return true
			}
		}
	}
	return false
}

// shadowed reports a field on which the AND-only conds admit nothing that the
// earlier single-field numeric branches do not already take.
func shadowed(conds []entity.ApprovalCondition, earlier []entity.ConditionBranch) (string, bool) {
	if len(conds) == 0 || !andOnly(conds) {
		return "", false
	}
	targets := make(map[string]*interval)
	var order []string
	for _, c := range conds {
		if !c.Operator.IsOrdering() || !condition.IsNumber(c.Value) {
			continue
		}
		iv := targets[c.Field]
		if iv == nil {
			iv = &interval{}
			targets[c.Field] = iv
			order = append(order, c.Field)
		}
		iv.bound(c.Operator, cast.ToFloat64(c.Value))
	}
	for _, field := range order {
		var cover []interval
		for _, b := range earlier {
			if iv, ok := numericRange(b.Conditions, field); ok {
				cover = append(cover, iv)
			}
		}
		if len(cover) > 0 && covered(*targets[field], cover) {
			return field, true
		}
	}
	return "", false
}

// numericRange is the interval a branch accepts when every condition is an
// AND-joined numeric comparison on field.
func numericRange(conds []entity.ApprovalCondition, field string) (interval, bool) {
	if len(conds) == 0 || !andOnly(conds) {
		return interval{}, false
	}
	var iv interval
	for _, c := range conds {
		if c.Field != field || !c.Operator.IsOrdering() || !condition.IsNumber(c.Value) {
			return interval{}, false
		}
		iv.bound(c.Operator, cast.ToFloat64(c.Value))
	}
	return iv, true
}

func andOnly(conds []entity.ApprovalCondition) bool {
	for _, c := range conds[:len(conds)-1] {
		if c.Logic == entity.LogicOr {
			return false
		}
	}
	return true
}

// cursor marks how far along the number line coverage reaches: every value
// below at is covered, and at itself too unless open.
type cursor struct {
	at   float64
	open bool
}

func (c cursor) before(o cursor) bool {
	return c.at < o.at || (c.at == o.at && c.open && !o.open)
}

// covered sweeps target from its lower bound, each step taking the reachable
// interval that extends coverage furthest.
func covered(target interval, cover []interval) bool {
	cur := cursor{at: math.Inf(-1)}
	if target.hasLo {
		cur = cursor{at: target.lo, open: !target.loOpen}
	}
	end := cursor{at: math.Inf(1)}
	if target.hasHi {
		end = cursor{at: target.hi, open: target.hiOpen}
	}
	for cur.before(end) {
		best := cur
		for _, iv := range cover {
			if !iv.reaches(cur) {
				continue
			}
			next := cursor{at: math.Inf(1)}
			if iv.hasHi {
				next = cursor{at: iv.hi, open: iv.hiOpen}
			}
			if best.before(next) {
				best = next
			}
		}
		if !cur.before(best) {
			return false
		}
		cur = best
	}
	return true
}

// reaches reports whether iv contains the first value at or after c that is
// not yet covered.
func (iv interval) reaches(c cursor) bool {
	if !iv.hasLo {
		return true
	}
	return iv.lo < c.at || (iv.lo == c.at && (!c.open || !iv.loOpen))
}

func (iv *interval) bound(op entity.Operator, v float64) {
	switch op {
	case entity.OpGt:
		iv.lower(v, true)
	case entity.OpGte:
		iv.lower(v, false)
	case entity.OpLt:
		iv.upper(v, true)
	case entity.OpLte:
		iv.upper(v, false)
	}
}

func (iv *interval) lower(v float64, open bool) {
	if !iv.hasLo || v > iv.lo || (v == iv.lo && open) {
		iv.lo, iv.loOpen, iv.hasLo = v, open, true
	}
}

func (iv *interval) upper(v float64, open bool) {
	if !iv.hasHi || v < iv.hi || (v == iv.hi && open) {
		iv.hi, iv.hiOpen, iv.hasHi = v, open, true
	}
}

func walk(from []entity.NodeID, edges map[entity.NodeID][]entity.NodeID) map[entity.NodeID]bool {
	seen := make(map[entity.NodeID]bool)
	queue := append([]entity.NodeID(nil), from...)
	for _, id := range from {
		seen[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range edges[id] {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

// findCycles runs a colouring DFS and returns one cycle per back edge, in template order
func findCycles(nodes []entity.ApprovalNode, byID map[entity.NodeID]*entity.ApprovalNode, edges map[entity.NodeID][]entity.NodeID) [][]entity.NodeID {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[entity.NodeID]int, len(byID))
	var stack []entity.NodeID
	var cycles [][]entity.NodeID

	var visit func(id entity.NodeID)
	visit = func(id entity.NodeID) {
		colour[id] = grey
		stack = append(stack, id)
		for _, to := range edges[id] {
			switch colour[to] {
			case white:
				visit(to)
			case grey:
				at := slices.Index(stack, to)
				cycle := append(slices.Clone(stack[at:]), to)
				cycles = append(cycles, cycle)
			}
		}
		stack = stack[:len(stack)-1]
		colour[id] = black
	}

	for i := range nodes {
		if id := nodes[i].ID; byID[id] == &nodes[i] && colour[id] == white {
			visit(id)
		}
	}
	return cycles
}

func joinIDs(ids []entity.NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
