package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/flowforge/flowforge/internal/domain"
)

func (e *Executor) executeProcessing(ctx context.Context, execution *domain.PipelineExecution, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	processingType := node.ConfigString("processingType")
	if processingType == "" {
		processingType = node.ConfigString("type")
	}

	data := primaryData(inputs)

	switch processingType {
	case "transform":
		transformed, err := applyTransforms(node, data)
		if err != nil {
			return nil, domain.NewNodeError(node.ID, err.Error(), nil)
		}
		return domain.NodeOutputs{"data": transformed}, nil

	case "filter":
		filtered, err := applyFilters(node, data)
		if err != nil {
			return nil, domain.NewNodeError(node.ID, err.Error(), nil)
		}
		return domain.NodeOutputs{"data": filtered}, nil

	case "aggregate":
		aggregated, err := applyAggregations(node, data)
		if err != nil {
			return nil, domain.NewNodeError(node.ID, err.Error(), nil)
		}
		return domain.NodeOutputs{"data": aggregated}, nil

	case "script":
		return e.executeScript(ctx, execution, node, data)

	default:
		// Unknown processing types are a passthrough.
		return domain.NodeOutputs{"data": data}, nil
	}
}

// executeScript delegates to the stage worker subprocess. In-process script
// evaluation is deliberately not supported.
func (e *Executor) executeScript(ctx context.Context, execution *domain.PipelineExecution, node domain.PipelineNode, data interface{}) (domain.NodeOutputs, error) {
	if e.runner == nil {
		return nil, domain.NewNodeError(node.ID, "script processing requires a stage runner", nil)
	}

	params := map[string]interface{}{
		"script": node.ConfigString("script"),
		"input":  data,
	}

	result, err := e.runner.RunStage(ctx, execution.ID, execution.Pipeline.ID, node.ID, params)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("stage worker: %v", err), nil)
	}
	if !result.Success {
		return nil, domain.NewNodeError(node.ID, result.Error,
			map[string]interface{}{"exit_code": result.ExitCode})
	}

	outputs := domain.NodeOutputs{"data": data}
	for k, v := range result.Outputs {
		outputs[k] = v
	}
	return outputs, nil
}

// records coerces the payload into a slice of items; a lone value becomes a
// single-item slice so operations degrade gracefully.
func records(data interface{}) []interface{} {
	switch v := data.(type) {
	case nil:
		return nil
	case []interface{}:
		return v
	default:
		return []interface{}{v}
	}
}

func recordField(item interface{}, field string) (interface{}, bool) {
	record, ok := item.(map[string]interface{})
	if !ok {
		return nil, false
	}
	value, exists := record[field]
	return value, exists
}

func applyTransforms(node domain.PipelineNode, data interface{}) (interface{}, error) {
	operations := node.ConfigSlice("operations")
	current := data

	for i, raw := range operations {
		op, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("transform operation %d is not an object", i)
		}
		opType, _ := op["type"].(string)

		var err error
		switch opType {
		case "map":
			current, err = transformMap(current, op)
		case "sort":
			current, err = transformSort(current, op)
		case "group":
			current, err = transformGroup(current, op)
		default:
			err = fmt.Errorf("unknown transform operation %q", opType)
		}
		if err != nil {
			return nil, err
		}
	}

	return current, nil
}

// transformMap copies one field of each record to a new key, or projects
// the record down to that field when no target is given.
func transformMap(data interface{}, op map[string]interface{}) (interface{}, error) {
	field, _ := op["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("map operation requires field")
	}
	target, _ := op["target"].(string)

	items := records(data)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		value, _ := recordField(item, field)
		if target == "" {
			out = append(out, value)
			continue
		}
		record, ok := item.(map[string]interface{})
		if !ok {
			record = map[string]interface{}{}
		}
		mapped := make(map[string]interface{}, len(record)+1)
		for k, v := range record {
			mapped[k] = v
		}
		mapped[target] = value
		out = append(out, mapped)
	}
	return out, nil
}

func transformSort(data interface{}, op map[string]interface{}) (interface{}, error) {
	field, _ := op["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("sort operation requires field")
	}
	descending := false
	if order, _ := op["order"].(string); order == "desc" {
		descending = true
	}

	items := records(data)
	sorted := make([]interface{}, len(items))
	copy(sorted, items)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, _ := recordField(sorted[i], field)
		b, _ := recordField(sorted[j], field)
		less := lessValues(a, b)
		if descending {
			return !less && !equalValues(a, b)
		}
		return less
	})

	return sorted, nil
}

func transformGroup(data interface{}, op map[string]interface{}) (interface{}, error) {
	field, _ := op["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("group operation requires field")
	}

	groups := map[string]interface{}{}
	for _, item := range records(data) {
		value, _ := recordField(item, field)
		key := fmt.Sprintf("%v", value)
		bucket, _ := groups[key].([]interface{})
		groups[key] = append(bucket, item)
	}
	return groups, nil
}

func applyFilters(node domain.PipelineNode, data interface{}) (interface{}, error) {
	clauses := filterClauses(node)
	if len(clauses) == 0 {
		return data, nil
	}

	items := records(data)
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		keep := true
		for _, clause := range clauses {
			field, _ := clause["field"].(string)
			operator, _ := clause["operator"].(string)
			value, _ := recordField(item, field)
			if !compareValues(operator, value, clause["value"]) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

// filterClauses accepts either a "conditions" list or a single clause
// declared at the top of the config.
func filterClauses(node domain.PipelineNode) []map[string]interface{} {
	var clauses []map[string]interface{}
	for _, raw := range node.ConfigSlice("conditions") {
		if clause, ok := raw.(map[string]interface{}); ok {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 && node.ConfigString("field") != "" {
		clauses = append(clauses, map[string]interface{}{
			"field":    node.Config["field"],
			"operator": node.Config["operator"],
			"value":    node.Config["value"],
		})
	}
	return clauses
}

func applyAggregations(node domain.PipelineNode, data interface{}) (interface{}, error) {
	type aggregation struct {
		kind  string
		field string
	}

	var aggs []aggregation
	for _, raw := range node.ConfigSlice("aggregations") {
		spec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := spec["type"].(string)
		field, _ := spec["field"].(string)
		aggs = append(aggs, aggregation{kind: kind, field: field})
	}
	if len(aggs) == 0 {
		kind := node.ConfigString("aggregateType")
		if kind == "" {
			kind = node.ConfigString("type")
		}
		aggs = append(aggs, aggregation{kind: kind, field: node.ConfigString("field")})
	}

	items := records(data)
	results := map[string]interface{}{}

	for _, agg := range aggs {
		key := agg.kind
		if agg.field != "" {
			key = agg.kind + "_" + agg.field
		}
		switch agg.kind {
		case "count":
			results[key] = len(items)
		case "sum":
			results[key] = sumField(items, agg.field)
		case "avg":
			if len(items) == 0 {
				results[key] = 0.0
			} else {
				results[key] = sumField(items, agg.field) / float64(len(items))
			}
		default:
			return nil, fmt.Errorf("unknown aggregation %q", agg.kind)
		}
	}

	return results, nil
}

// sumField totals the numeric values of a field across records.
// Non-numeric or missing values contribute zero rather than failing.
func sumField(items []interface{}, field string) float64 {
	var total float64
	for _, item := range items {
		value, _ := recordField(item, field)
		if n, ok := asNumber(value); ok {
			total += n
		}
	}
	return total
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(n, "%g", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func lessValues(a, b interface{}) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an < bn
		}
	}
	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

func equalValues(a, b interface{}) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues implements the predicate operators shared by filter and
// condition nodes. A missing field evaluates as undefined: not-equal for
// "ne", false for every other operator.
func compareValues(operator string, value, target interface{}) bool {
	if value == nil {
		return operator == "ne"
	}

	switch operator {
	case "eq":
		return equalValues(value, target)
	case "ne":
		return !equalValues(value, target)
	case "gt", "lt", "gte", "lte":
		vn, vok := asNumber(value)
		tn, tok := asNumber(target)
		if !vok || !tok {
			return false
		}
		switch operator {
		case "gt":
			return vn > tn
		case "lt":
			return vn < tn
		case "gte":
			return vn >= tn
		default:
			return vn <= tn
		}
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", value), fmt.Sprintf("%v", target))
	default:
		return false
	}
}
