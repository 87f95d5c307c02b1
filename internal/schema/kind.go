package schema

import "fmt"

// Kind classifies a field slot.
type Kind int

const (
	KindScalar Kind = iota // any primitive wire value
	KindDate               // millisecond UTC timestamp
	KindID                 // object id reference
	KindOne                // single nested instance
	KindMany               // ordered list of nested instances
)

var kindNames = map[Kind]string{
	KindScalar: "scalar",
	KindDate:   "date",
	KindID:     "id",
	KindOne:    "one",
	KindMany:   "many",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Nested reports whether the kind holds nested instances.
func (k Kind) Nested() bool {
	return k == KindOne || k == KindMany
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidField, s)
}
