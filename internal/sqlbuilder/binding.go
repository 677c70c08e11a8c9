package sqlbuilder

// Binding is a typed parameter value. The builder only ever emits
// placeholders into the template; the typed variants decide how the value is
// handed to the driver.
type BindKind int

const (
	BindNull BindKind = iota
	BindInt
	BindFloat
	BindBool
	BindString
)

type Binding struct {
	Kind BindKind
	I    int64
	F    float64
	B    bool
	S    string
}

func Int(v int64) Binding     { return Binding{Kind: BindInt, I: v} }
func Float(v float64) Binding { return Binding{Kind: BindFloat, F: v} }
func Bool(v bool) Binding     { return Binding{Kind: BindBool, B: v} }
func String(v string) Binding { return Binding{Kind: BindString, S: v} }
func Null() Binding           { return Binding{Kind: BindNull} }

// Value returns the driver-facing representation.
func (b Binding) Value() any {
	switch b.Kind {
	case BindInt:
		return b.I
	case BindFloat:
		return b.F
	case BindBool:
		return b.B
	case BindString:
		return b.S
	default:
		return nil
	}
}

func bindingValues(bindings []Binding) []any {
	out := make([]any, len(bindings))
	for i, b := range bindings {
		out[i] = b.Value()
	}
	return out
}
