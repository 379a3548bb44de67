// Package util holds small generic helpers shared across packages.
package util

// Ptr returns a pointer to v. Optional request and schedule fields are
// pointers so "absent" and "zero" stay distinct.
func Ptr[T any](v T) *T {
	return &v
}
