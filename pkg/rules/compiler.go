package rules

import (
	"strconv"
	"strings"

	"github.com/lendvoice/question-engine/pkg/apperrors"
	"github.com/lendvoice/question-engine/pkg/models"
)

// Comparison is one condition of a decision-table rule row.
type Comparison struct {
	Operator string
	Value    models.Value
}

// Rule is a single decision-table row: the row matches when every condition
// holds against the evaluation context.
type Rule struct {
	Conditions map[string]Comparison
	Output     bool
}

// DecisionTable is the compiled form of a criteria string. Rows are walked
// in order under the "first" hit policy; a compiled-but-empty table
// evaluates to false.
type DecisionTable struct {
	HitPolicy string
	Rules     []Rule
}

// HitPolicyFirst is the only hit policy the compiler emits.
const HitPolicyFirst = "first"

const (
	headerAll = "Matches all of the following rules:"
	headerAny = "Matches any of the following rules:"
)

// Compile translates a criteria string into a normalized decision table.
//
// Grammar (line oriented):
//
//	<Field> is not set          -> {field: {==, null}}
//	<Field> is not <Value>      -> {field: {!=, value}}
//	<Field> is <Value>          -> {field: {==, value}}
//	<Field> >= <Number>         -> numeric comparison (also <=, >, <)
//	Matches all of ... + lines  -> one row with many conditions
//	Matches any of ... + lines  -> N rows with one condition each
//
// Empty or whitespace-only input compiles to zero rules. Anything the table
// form cannot represent is rejected; the registry treats that as fatal at
// startup.
func Compile(criteria string) (*DecisionTable, error) {
	table := &DecisionTable{HitPolicy: HitPolicyFirst}

	lines := make([]string, 0, 4)
	for _, line := range strings.Split(criteria, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return table, nil
	}

	switch lines[0] {
	case headerAll:
		rule, err := compileAllOf(lines[1:])
		if err != nil {
			return nil, err
		}
		table.Rules = append(table.Rules, rule)
	case headerAny:
		if len(lines) == 1 {
			return nil, &apperrors.CompileError{Line: lines[0], Reason: "any-of block has no rules"}
		}
		for _, line := range lines[1:] {
			field, cmp, err := compileLine(line)
			if err != nil {
				return nil, err
			}
			table.Rules = append(table.Rules, Rule{
				Conditions: map[string]Comparison{field: cmp},
				Output:     true,
			})
		}
	default:
		// Bare lines with no header are a conjunction.
		rule, err := compileAllOf(lines)
		if err != nil {
			return nil, err
		}
		table.Rules = append(table.Rules, rule)
	}

	return table, nil
}

func compileAllOf(lines []string) (Rule, error) {
	if len(lines) == 0 {
		return Rule{}, &apperrors.CompileError{Line: headerAll, Reason: "all-of block has no rules"}
	}
	rule := Rule{Conditions: make(map[string]Comparison, len(lines)), Output: true}
	for _, line := range lines {
		field, cmp, err := compileLine(line)
		if err != nil {
			return Rule{}, err
		}
		if _, dup := rule.Conditions[field]; dup {
			// A row is a map from field to one comparison; a second
			// comparison on the same field is unrepresentable.
			return Rule{}, &apperrors.CompileError{Line: line, Reason: "duplicate condition for field " + field}
		}
		rule.Conditions[field] = cmp
	}
	return rule, nil
}

func compileLine(line string) (string, Comparison, error) {
	if field, ok := strings.CutSuffix(line, " is not set"); ok {
		return NormalizeFieldName(field), Comparison{Operator: "==", Value: models.Null()}, nil
	}
	if field, value, ok := strings.Cut(line, " is not "); ok {
		return normalizedCondition(field, "!=", value, line)
	}
	if field, value, ok := strings.Cut(line, " is "); ok {
		return normalizedCondition(field, "==", value, line)
	}
	for _, op := range []string{">=", "<=", ">", "<"} {
		field, value, ok := strings.Cut(line, op)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if !numberPattern.MatchString(value) {
			return "", Comparison{}, &apperrors.CompileError{
				Line:   line,
				Reason: "non-numeric value " + strconv.Quote(value) + " for operator " + op,
			}
		}
		return NormalizeFieldName(strings.TrimSpace(field)), Comparison{Operator: op, Value: NormalizeValue(value)}, nil
	}
	return "", Comparison{}, &apperrors.CompileError{Line: line, Reason: "unrecognized criteria line"}
}

func normalizedCondition(field, op, value, line string) (string, Comparison, error) {
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return "", Comparison{}, &apperrors.CompileError{Line: line, Reason: "malformed comparison"}
	}
	return NormalizeFieldName(field), Comparison{Operator: op, Value: NormalizeValue(value)}, nil
}
