package soap

import (
	"strings"

	"github.com/clbanning/mxj"
)

// Text returns the character data of an mxj value. Elements that carry
// attributes are decoded by mxj as maps with the data under "#text".
func Text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if s, ok := t["#text"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// StringAt returns the text found at path in m, or "" when it is missing.
func StringAt(m mxj.Map, path string) string {
	v, err := m.ValueForPath(path)
	if err != nil {
		return ""
	}
	return Text(v)
}

// MapsAt returns every element found at path as a map. A single element and
// a repeated element are handled alike.
func MapsAt(m mxj.Map, path string) []mxj.Map {
	values, err := m.ValuesForPath(path)
	if err != nil {
		return nil
	}
	out := make([]mxj.Map, 0, len(values))
	for _, v := range values {
		if mv, ok := v.(map[string]interface{}); ok {
			out = append(out, mxj.Map(mv))
		}
	}
	return out
}

// Attr returns the attribute name of element m ("-name" in mxj's encoding).
func Attr(m mxj.Map, name string) string {
	if s, ok := m["-"+name].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
