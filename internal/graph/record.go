package graph

// AsString extracts a string field from a record.
func (r Record) AsString(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AsInt extracts an integer field from a record, tolerating the
// numeric types Bolt deserializes to.
func (r Record) AsInt(key string) int {
	if v, ok := r[key]; ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return 0
}

// AsInt64 extracts a 64-bit integer field from a record.
func (r Record) AsInt64(key string) int64 {
	if v, ok := r[key]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return 0
}

// AsBool extracts a boolean field from a record.
func (r Record) AsBool(key string) bool {
	if v, ok := r[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
