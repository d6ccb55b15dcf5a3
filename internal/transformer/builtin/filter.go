package builtin

// Filter keeps the rows for which Keep returns true. The input slice is not
// modified.
type Filter[T any] struct {
	Keep func(T) bool
}

func (f Filter[T]) Apply(in []T) []T {
	if f.Keep == nil {
		return in
	}
	out := make([]T, 0, len(in))
	for _, r := range in {
		if f.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FieldEquals builds a Filter keeping rows whose field equals want exactly.
// Rows with a nil field are dropped.
func FieldEquals[T any](field func(T) *string, want string) Filter[T] {
	return Filter[T]{Keep: func(r T) bool {
		v := field(r)
		return v != nil && *v == want
	}}
}
