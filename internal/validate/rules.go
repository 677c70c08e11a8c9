package validate

// Rule sets are declarative: built once at startup, read-only afterwards.

type RuleKind int

const (
	KindRequired RuleKind = iota
	KindType
	KindPattern
	KindMinLen
	KindMaxLen
	KindMinValue
	KindMaxValue
	KindIn
	KindNotIn
	KindUnique
	KindExists
	KindCustom
)

type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInteger  ValueType = "integer"
	TypeFloat    ValueType = "float"
	TypeBoolean  ValueType = "boolean"
	TypeEmail    ValueType = "email"
	TypeURL      ValueType = "url"
	TypeIP       ValueType = "ip"
	TypeDate     ValueType = "date"
	TypeDateTime ValueType = "datetime"
)

type Rule struct {
	Kind      RuleKind
	Type      ValueType
	Pattern   string // raw regex or a named pattern
	Length    int
	Limit     float64
	Values    []string
	Table     string
	Column    string
	ExcludeID string
	Validator string // name in the custom-validator registry
}

// RuleSet maps a field name to its ordered rule list.
type RuleSet map[string][]Rule

func Required() Rule                { return Rule{Kind: KindRequired} }
func TypeOf(t ValueType) Rule       { return Rule{Kind: KindType, Type: t} }
func Pattern(p string) Rule         { return Rule{Kind: KindPattern, Pattern: p} }
func MinLen(n int) Rule             { return Rule{Kind: KindMinLen, Length: n} }
func MaxLen(n int) Rule             { return Rule{Kind: KindMaxLen, Length: n} }
func MinValue(v float64) Rule       { return Rule{Kind: KindMinValue, Limit: v} }
func MaxValue(v float64) Rule       { return Rule{Kind: KindMaxValue, Limit: v} }
func In(values ...string) Rule      { return Rule{Kind: KindIn, Values: values} }
func NotIn(values ...string) Rule   { return Rule{Kind: KindNotIn, Values: values} }
func Exists(table, col string) Rule { return Rule{Kind: KindExists, Table: table, Column: col} }
func Custom(name string) Rule       { return Rule{Kind: KindCustom, Validator: name} }

func Unique(table, col string) Rule {
	return Rule{Kind: KindUnique, Table: table, Column: col}
}

// UniqueExcluding allows updates to keep their own current value.
func UniqueExcluding(table, col, excludeID string) Rule {
	return Rule{Kind: KindUnique, Table: table, Column: col, ExcludeID: excludeID}
}
