package config

// Params wraps a free-form parameter map for type-safe extraction.
// All accessors return the supplied default when the key is missing or
// the value cannot be converted; a misconfigured parameter therefore
// degrades to the documented default instead of failing.
type Params struct {
	data map[string]any
}

// NewParams creates Params from the given map. A nil map yields empty Params.
func NewParams(data map[string]any) Params {
	if data == nil {
		data = make(map[string]any)
	}
	return Params{data: data}
}

// String returns the string value for key, or defaultVal.
func (p Params) String(key, defaultVal string) string {
	if s, ok := p.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal.
//
// Accepts int, int64, and float64 without a fractional part (the YAML
// and JSON decoders produce all three).
func (p Params) Int(key string, defaultVal int) int {
	switch v := p.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal.
func (p Params) Float(key string, defaultVal float64) float64 {
	switch v := p.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (p Params) Bool(key string, defaultVal bool) bool {
	if b, ok := p.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal.
// A []any is accepted if every element is a string.
func (p Params) StringSlice(key string, defaultVal []string) []string {
	switch v := p.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Has reports whether key exists.
func (p Params) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Raw returns the underlying map. The returned map must not be modified.
func (p Params) Raw() map[string]any {
	return p.data
}
