package policy

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Flattening
// =============================================================================

// Flatten expands every statement of doc into one row per action/resource
// pair. Rows keep statement order, then action order, then resource order.
func Flatten(policyName string, policyType core.PolicyType, doc *Document) []core.PermissionRow {
	if doc == nil {
		return nil
	}

	var rows []core.PermissionRow
	for _, stmt := range doc.Statement {
		rows = append(rows, flattenStatement(policyName, policyType, stmt)...)
	}
	return rows
}

// FlattenRaw decodes raw and flattens it in one step.
func FlattenRaw(policyName string, policyType core.PolicyType, raw any) ([]core.PermissionRow, error) {
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Flatten(policyName, policyType, doc), nil
}

func flattenStatement(policyName string, policyType core.PolicyType, stmt Statement) []core.PermissionRow {
	sid := core.Placeholder
	if stmt.Sid != nil {
		sid = *stmt.Sid
	}

	// Action wins over NotAction when a malformed statement carries both
	actions, actionPrefix := stmt.Action, ""
	if actions == nil && stmt.NotAction != nil {
		actions, actionPrefix = stmt.NotAction, core.NotActionPrefix
	}

	resources, resourcePrefix := stmt.Resource, ""
	if resources == nil && stmt.NotResource != nil {
		resources, resourcePrefix = stmt.NotResource, core.NotResourcePrefix
	}

	condition := RenderCondition(stmt.Condition)

	rows := make([]core.PermissionRow, 0, len(actions)*len(resources))
	for _, action := range actions {
		for _, resource := range resources {
			rows = append(rows, core.PermissionRow{
				PolicyName: policyName,
				PolicyType: policyType,
				Sid:        sid,
				Effect:     stmt.Effect,
				Action:     actionPrefix + action,
				Resource:   resourcePrefix + resource,
				Condition:  condition,
			})
		}
	}
	return rows
}

// RenderCondition serializes a condition block to compact JSON with sorted
// keys. Absent or empty conditions render as the placeholder.
func RenderCondition(condition any) string {
	if isEmpty(condition) {
		return core.Placeholder
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(condition); err != nil {
		return core.Placeholder
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.String:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
