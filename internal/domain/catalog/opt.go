package catalog

import "strconv"

// OptInt64 is an optional int64 reference. The zero value is absent, and two
// absent values compare equal, so OptInt64 is usable inside map keys.
type OptInt64 struct {
	Value int64
	Set   bool
}

// NewOptInt64 returns a present OptInt64.
func NewOptInt64(v int64) OptInt64 {
	return OptInt64{Value: v, Set: true}
}

// OptInt64FromPtr converts a nullable pointer.
func OptInt64FromPtr(v *int64) OptInt64 {
	if v == nil {
		return OptInt64{}
	}
	return NewOptInt64(*v)
}

// Get returns the value and whether it is present.
func (o OptInt64) Get() (int64, bool) {
	return o.Value, o.Set
}

// IsSet reports whether the value is present.
func (o OptInt64) IsSet() bool {
	return o.Set
}

// Ptr returns nil for an absent value.
func (o OptInt64) Ptr() *int64 {
	if !o.Set {
		return nil
	}
	v := o.Value
	return &v
}

func (o OptInt64) String() string {
	if !o.Set {
		return "none"
	}
	return strconv.FormatInt(o.Value, 10)
}
