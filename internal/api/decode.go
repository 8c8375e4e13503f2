package api

import (
	"encoding/json"
	"mime"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// decodeBody accepts the two content types spec.md §6 names for webhook
// bodies (JSON or form-urlencoded) and returns a case-insensitive field map.
func decodeBody(c *echo.Context) (fieldMap, error) {
	req := c.Request()
	contentType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))

	raw := map[string]any{}
	switch contentType {
	case "application/json":
		dec := json.NewDecoder(req.Body)
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	default:
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		for k, v := range req.PostForm {
			if len(v) > 0 {
				raw[k] = v[0]
			}
		}
	}

	fm := make(fieldMap, len(raw))
	for k, v := range raw {
		fm[strings.ToLower(k)] = v
	}
	return fm, nil
}

// fieldMap is a lower-cased webhook field lookup, tolerant of carriers that
// vary field casing (CallSid vs callSid vs call_sid) across deliveries.
type fieldMap map[string]any

func (f fieldMap) str(keys ...string) string {
	for _, k := range keys {
		if v, ok := f[strings.ToLower(k)]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func (f fieldMap) strPtr(keys ...string) *string {
	for _, k := range keys {
		if v, ok := f[strings.ToLower(k)]; ok {
			if s, ok := v.(string); ok && s != "" {
				return &s
			}
		}
	}
	return nil
}

func (f fieldMap) int64(keys ...string) int64 {
	for _, k := range keys {
		if v, ok := f[strings.ToLower(k)]; ok {
			switch n := v.(type) {
			case float64:
				return int64(n)
			case string:
				if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
					return parsed
				}
			}
		}
	}
	return 0
}

func (f fieldMap) int64Ptr(keys ...string) *int64 {
	n := f.int64(keys...)
	if n == 0 {
		return nil
	}
	return &n
}

func (f fieldMap) int(keys ...string) int {
	return int(f.int64(keys...))
}

func (f fieldMap) extra(known ...string) map[string]any {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[strings.ToLower(k)] = true
	}
	out := map[string]any{}
	for k, v := range f {
		if !skip[k] {
			out[k] = v
		}
	}
	return out
}
