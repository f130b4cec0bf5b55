package recommend

import (
	"encoding/json"
	"fmt"
)

// Normalize converts one raw recommendation into an Item. It returns nil when
// raw is not an object; callers skip such entries.
func Normalize(raw any) *Item {
	obj, ok := asObject(raw)
	if !ok {
		return nil
	}

	item := &Item{
		Name:        firstString(obj, "name", "product_name"),
		Description: firstString(obj, "description", "desc"),
		URL:         resolveURL(obj),
		Price:       obj["price"],
		Features:    features(obj["features"]),
		Raw:         obj,
	}
	if item.Name == "" {
		item.Name = DefaultName
	}
	if item.Description == "" {
		item.Description = DefaultDescription
	}
	if img := firstString(obj, "image_url", "image"); img != "" {
		item.ImageURL = &img
	}
	return item
}

func asObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return nil, false
		}
		return v, true
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	}
	return nil, false
}

func decodeObject(data []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstString returns the first truthy value among keys, rendered as a string.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v := obj[k]
		if !truthy(v) {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func resolveURL(obj map[string]any) string {
	if u := firstString(obj, "url", "product_url"); u != "" {
		return u
	}
	if id := firstString(obj, "product_id"); id != "" {
		return "/product/" + id
	}
	if id := firstString(obj, "_id"); id != "" {
		return "/product/" + id
	}
	return DefaultURL
}

func features(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			list = make([]any, len(strs))
			for i, s := range strs {
				list[i] = s
			}
		}
	}
	out := make([]string, 0, len(list))
	for _, f := range list {
		if s, ok := f.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
