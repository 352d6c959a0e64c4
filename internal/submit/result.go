package submit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ldcasilang/sui-portfolio/internal/chain"
	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
)

// executionFailure returns the raw failure text carried by an executed
// result, or "" when it succeeded.
func executionFailure(res chain.MutationResult) string {
	if res.Raw != nil {
		if msg := failureText(res.Raw["error"]); msg != "" {
			return msg
		}
	}
	status, _ := res.Effects["status"].(map[string]any)
	if status == nil {
		return ""
	}
	if msg := failureText(status["error"]); msg != "" {
		return msg
	}
	if s, _ := status["status"].(string); strings.EqualFold(s, "failure") {
		return "Transaction failed"
	}
	return ""
}

func failureText(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case map[string]any:
		if msg, ok := value["message"].(string); ok && msg != "" {
			return msg
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// createdID finds the id of a newly created record: event payloads first,
// then effects.created, then created object changes.
func createdID(res chain.MutationResult) string {
	for _, ev := range res.Events {
		if parsed, ok := ev["parsedJson"].(map[string]any); ok {
			if id := objectIDIn(parsed); id != "" {
				return id
			}
			continue
		}
		if bcs, ok := ev["bcs"].(string); ok {
			var parsed map[string]any
			if json.Unmarshal([]byte(bcs), &parsed) == nil {
				if id := objectIDIn(parsed); id != "" {
					return id
				}
			}
			continue
		}
		if id, _ := ev["object_id"].(string); id != "" {
			return id
		}
	}

	created := mapSlice(res.Effects["created"])
	if len(created) == 0 {
		created = mapSlice(res.Effects["createdObjects"])
	}
	for _, obj := range created {
		var id string
		if ref, ok := obj["reference"].(map[string]any); ok {
			id, _ = ref["objectId"].(string)
		}
		if id == "" {
			id = firstString(obj, "objectId", "object_id", "id")
		}
		if strings.HasPrefix(id, "0x") {
			return id
		}
	}

	for _, change := range res.ObjectChanges {
		if change["type"] != "created" {
			continue
		}
		id := firstString(change, "objectId", "object_id")
		if id == "" {
			if inner, ok := change["object"].(map[string]any); ok {
				id = firstString(inner, "objectId")
			}
		}
		if strings.HasPrefix(id, "0x") {
			return id
		}
	}
	return ""
}

func objectIDIn(m map[string]any) string {
	if id, _ := m["object_id"].(string); id != "" {
		return id
	}
	if fields, ok := m["fields"].(map[string]any); ok {
		if id, _ := fields["object_id"].(string); id != "" {
			return id
		}
	}
	return ""
}

// inlineFields returns record data emitted by the mutation's events,
// normalized over prior, if any event carries a name or skills.
func inlineFields(res chain.MutationResult, prior portfolio.Record) (portfolio.Record, bool) {
	for _, ev := range res.Events {
		var parsed map[string]any
		if p, ok := ev["parsedJson"].(map[string]any); ok {
			parsed = p
		} else if bcs, ok := ev["bcs"].(string); ok {
			if json.Unmarshal([]byte(bcs), &parsed) != nil {
				continue
			}
		}
		if parsed == nil {
			continue
		}
		candidate := parsed
		if fields, ok := parsed["fields"].(map[string]any); ok {
			candidate = fields
		}
		if candidate["name"] == nil && candidate["skills"] == nil {
			continue
		}
		return portfolio.Normalize(candidate, prior), true
	}
	return portfolio.Record{}, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, _ := m[key].(string); v != "" {
			return v
		}
	}
	return ""
}

func mapSlice(v any) []map[string]any {
	items, _ := v.([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
