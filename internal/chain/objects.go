package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	pageLimit = 50
	maxPages  = 10
)

var objectOptions = map[string]any{
	"showType":    true,
	"showContent": true,
	"showOwner":   true,
}

// GetObject fetches one object with its content.
func (c *Client) GetObject(ctx context.Context, id string) (Object, error) {
	var raw map[string]any
	if err := c.call(ctx, "sui_getObject", []any{id, objectOptions}, &raw); err != nil {
		return Object{}, err
	}
	if errObj, ok := raw["error"].(map[string]any); ok {
		return Object{}, fmt.Errorf("%w: %s (%v)", ErrObjectNotFound, id, errObj["code"])
	}
	obj, ok := ParseObject(raw)
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return obj, nil
}

type page struct {
	Data        []map[string]any `json:"data"`
	NextCursor  json.RawMessage  `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

func (p page) cursor() any {
	if len(p.NextCursor) == 0 || string(p.NextCursor) == "null" {
		return nil
	}
	return p.NextCursor
}

// GetOwnedObjects lists objects owned by owner. When typeTag is set the node
// is asked to filter by struct type.
func (c *Client) GetOwnedObjects(ctx context.Context, owner, typeTag string) ([]Object, error) {
	query := map[string]any{"options": objectOptions}
	if typeTag != "" {
		query["filter"] = map[string]any{"StructType": typeTag}
	}

	var (
		out    []Object
		cursor any
	)
	for i := 0; i < maxPages; i++ {
		var p page
		if err := c.call(ctx, "suix_getOwnedObjects", []any{owner, query, cursor, pageLimit}, &p); err != nil {
			return out, err
		}
		for _, item := range p.Data {
			if obj, ok := ParseObject(item); ok {
				out = append(out, obj)
			}
		}
		cursor = p.cursor()
		if !p.HasNextPage || cursor == nil {
			break
		}
	}
	return out, nil
}

// QueryObjectsByType finds objects of typeTag by scanning the object changes
// of transactions that called into the type's module, newest first. The
// returned objects carry id and type but no content.
func (c *Client) QueryObjectsByType(ctx context.Context, typeTag string) ([]Object, error) {
	tag, err := ParseTypeTag(typeTag)
	if err != nil {
		return nil, err
	}
	query := map[string]any{
		"filter": map[string]any{
			"MoveFunction": map[string]any{
				"package": tag.Package,
				"module":  tag.Module,
			},
		},
		"options": map[string]any{"showObjectChanges": true},
	}

	var (
		out    []Object
		seen   = map[string]bool{}
		cursor any
	)
	for i := 0; i < maxPages; i++ {
		var p page
		if err := c.call(ctx, "suix_queryTransactionBlocks", []any{query, cursor, pageLimit, true}, &p); err != nil {
			return out, err
		}
		for _, block := range p.Data {
			for _, change := range mapSlice(block["objectChanges"]) {
				if str(change["type"]) != "created" {
					continue
				}
				objType := str(change["objectType"])
				id := firstString(change, "objectId", "object_id")
				if id == "" || seen[id] || !strings.Contains(objType, tag.ShortName()) {
					continue
				}
				seen[id] = true
				out = append(out, Object{ID: id, Type: objType, Raw: change})
			}
		}
		cursor = p.cursor()
		if !p.HasNextPage || cursor == nil {
			break
		}
	}
	return out, nil
}

// ParseObject pulls id, type and content fields out of the shapes the node
// and client libraries return: {data:{...}}, a bare object, or an
// {object:{...}} wrapper. Content fields may sit at content.fields or
// content.data.fields.
func ParseObject(raw map[string]any) (Object, bool) {
	if raw == nil {
		return Object{}, false
	}
	data := raw
	if inner, ok := raw["data"].(map[string]any); ok {
		data = inner
	} else if inner, ok := raw["object"].(map[string]any); ok {
		data = inner
	}

	obj := Object{Raw: raw}
	obj.ID = firstString(data, "objectId", "object_id", "id")
	if obj.ID == "" {
		if ref, ok := data["reference"].(map[string]any); ok {
			obj.ID = firstString(ref, "objectId", "object_id")
		}
	}

	content, _ := data["content"].(map[string]any)
	obj.Type = firstString(data, "type", "objectType")
	if obj.Type == "" && content != nil {
		obj.Type = str(content["type"])
	}
	if content != nil {
		if fields, ok := content["fields"].(map[string]any); ok {
			obj.Fields = fields
		} else if inner, ok := content["data"].(map[string]any); ok {
			obj.Fields, _ = inner["fields"].(map[string]any)
		}
	}
	if obj.ID == "" && obj.Type == "" && obj.Fields == nil {
		return Object{}, false
	}
	return obj, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := str(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func mapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
