package transformer

// Step transforms a slice of rows of one type.
type Step[T any] interface{ Apply([]T) []T }

// Chain is an ordered list of steps.
type Chain[T any] []Step[T]

func (c Chain[T]) Apply(in []T) []T {
	out := in
	for _, s := range c {
		out = s.Apply(out)
	}
	return out
}
