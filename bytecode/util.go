package bytecode

// clone returns a copy of src. A nil slice stays nil.
func clone[T any](src []T) []T {
	if src == nil {
		return nil
	}
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}
