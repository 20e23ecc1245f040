package content

import (
	"fmt"
	"time"
)

// typed front matter keys; everything else lands in Meta.Extra.
var typedKeys = map[string]struct{}{
	"title": {}, "slug": {}, "date": {}, "weight": {}, "template": {},
	"tags": {}, "category": {}, "draft": {},
}

// metaDateLayouts are accepted string forms for the date field.
var metaDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// decodeMeta converts a parsed front matter map into typed Meta.
func decodeMeta(fields map[string]any) (Meta, error) {
	m := Meta{Extra: map[string]any{}}

	for key, val := range fields {
		if _, ok := typedKeys[key]; !ok {
			m.Extra[key] = val
			continue
		}
		var err error
		switch key {
		case "title":
			m.Title, err = asString(key, val)
		case "slug":
			m.Slug, err = asString(key, val)
		case "template":
			m.Template, err = asString(key, val)
		case "category":
			m.Category, err = asString(key, val)
		case "weight":
			m.Weight, err = asInt(key, val)
		case "draft":
			m.Draft, err = asBool(key, val)
		case "date":
			m.Date, err = asDate(val)
		case "tags":
			m.Tags, err = asStringSlice(key, val)
		}
		if err != nil {
			return Meta{}, err
		}
	}
	return m, nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	return s, nil
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("field %q: expected integer, got %T", key, v)
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q: expected boolean, got %T", key, v)
	}
	return b, nil
}

func asDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		for _, layout := range metaDateLayouts {
			if ts, err := time.Parse(layout, d); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("field \"date\": unrecognized value %q", d)
	}
	return time.Time{}, fmt.Errorf("field \"date\": expected date, got %T", v)
}

func asStringSlice(key string, v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q: expected list of strings, got %T", key, v)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: expected list of strings, got element %T", key, it)
		}
		out = append(out, s)
	}
	return out, nil
}
