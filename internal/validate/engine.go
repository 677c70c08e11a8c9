package validate

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"secgate/internal/audit"
)

// Lookup resolves uniqueness/existence rules against the row store.
type Lookup interface {
	Exists(ctx context.Context, table, column, value, excludeID string) (bool, error)
}

// CustomValidator is a named strategy registered at startup; rule tables
// refer to it by name instead of carrying closures.
type CustomValidator interface {
	Validate(value string) (ok bool, message string)
}

var namedPatterns = map[string]*regexp.Regexp{
	"alpha":        regexp.MustCompile(`^[a-zA-Z]+$`),
	"alphanumeric": regexp.MustCompile(`^[a-zA-Z0-9]+$`),
	"slug":         regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`),
	"phone":        regexp.MustCompile(`^\+?[0-9\s\-()]{7,20}$`),
	"username":     regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`),
}

type Engine struct {
	lookup Lookup
	custom map[string]CustomValidator
	sink   audit.Sink
	log    *slog.Logger

	// raw-pattern cache, shared by every request going through Validate
	mu      sync.RWMutex
	regexes map[string]*regexp.Regexp
}

func NewEngine(lookup Lookup, sink audit.Sink, log *slog.Logger) *Engine {
	if sink == nil {
		sink = audit.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		lookup:  lookup,
		custom:  make(map[string]CustomValidator),
		sink:    sink,
		log:     log,
		regexes: make(map[string]*regexp.Regexp),
	}
}

// RegisterValidator adds a named custom strategy. Call during startup only;
// the registry is not synchronized for request-time writes.
func (e *Engine) RegisterValidator(name string, v CustomValidator) {
	e.custom[name] = v
}

// Validate checks the fields of data that have rules and accumulates every
// violation per field. An empty map means pass.
func (e *Engine) Validate(ctx context.Context, data map[string]string, rules RuleSet) map[string][]string {
	violations := make(map[string][]string)
	for field, fieldRules := range rules {
		value, present := data[field]
		for _, rule := range fieldRules {
			if rule.Kind == KindRequired {
				if !present || strings.TrimSpace(value) == "" {
					violations[field] = append(violations[field], "is required")
				}
				continue
			}
			// Remaining rules only apply to supplied, non-empty values.
			if !present || value == "" {
				continue
			}
			if msg := e.applyRule(ctx, rule, value); msg != "" {
				violations[field] = append(violations[field], msg)
			}
		}
	}
	return violations
}

func (e *Engine) applyRule(ctx context.Context, rule Rule, value string) string {
	switch rule.Kind {
	case KindType:
		return checkType(rule.Type, value)
	case KindPattern:
		re, err := e.pattern(rule.Pattern)
		if err != nil {
			// A broken rule must never accept input.
			return "has an invalid format rule"
		}
		if !re.MatchString(value) {
			return "has an invalid format"
		}
	case KindMinLen:
		if len([]rune(value)) < rule.Length {
			return fmt.Sprintf("must be at least %d characters", rule.Length)
		}
	case KindMaxLen:
		if len([]rune(value)) > rule.Length {
			return fmt.Sprintf("must be at most %d characters", rule.Length)
		}
	case KindMinValue:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n < rule.Limit {
			return fmt.Sprintf("must be at least %v", rule.Limit)
		}
	case KindMaxValue:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n > rule.Limit {
			return fmt.Sprintf("must be at most %v", rule.Limit)
		}
	case KindIn:
		if !contains(rule.Values, value) {
			return "is not an allowed value"
		}
	case KindNotIn:
		if contains(rule.Values, value) {
			return "is not an allowed value"
		}
	case KindUnique:
		exists, err := e.exists(ctx, rule, value)
		if err != nil {
			// Lookup failures fail open: a transient store outage must not
			// lock out legitimate users. The miss is still logged.
			e.log.Warn("uniqueness lookup failed, skipping rule",
				"table", rule.Table, "column", rule.Column, "error", err)
			return ""
		}
		if exists {
			return "is already taken"
		}
	case KindExists:
		exists, err := e.exists(ctx, rule, value)
		if err != nil {
			e.log.Warn("existence lookup failed, skipping rule",
				"table", rule.Table, "column", rule.Column, "error", err)
			return ""
		}
		if !exists {
			return "does not refer to a known record"
		}
	case KindCustom:
		v, ok := e.custom[rule.Validator]
		if !ok {
			return "has an unknown validation rule"
		}
		if ok, msg := v.Validate(value); !ok {
			if msg == "" {
				msg = "is invalid"
			}
			return msg
		}
	}
	return ""
}

func (e *Engine) exists(ctx context.Context, rule Rule, value string) (bool, error) {
	if e.lookup == nil {
		return false, fmt.Errorf("no lookup configured")
	}
	return e.lookup.Exists(ctx, rule.Table, rule.Column, value, rule.ExcludeID)
}

func (e *Engine) pattern(p string) (*regexp.Regexp, error) {
	if re, ok := namedPatterns[p]; ok {
		return re, nil
	}
	e.mu.RLock()
	re, ok := e.regexes[p]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.regexes[p] = re
	e.mu.Unlock()
	return re, nil
}

func checkType(t ValueType, value string) string {
	switch t {
	case TypeString:
		return ""
	case TypeInteger:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return "must be an integer"
		}
	case TypeFloat:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return "must be a number"
		}
	case TypeBoolean:
		switch strings.ToLower(value) {
		case "true", "false", "1", "0", "yes", "no":
		default:
			return "must be a boolean"
		}
	case TypeEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil || addr.Address != value {
			return "must be a valid email address"
		}
	case TypeURL:
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "must be a valid URL"
		}
	case TypeIP:
		if _, err := netip.ParseAddr(value); err != nil {
			return "must be a valid IP address"
		}
	case TypeDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return "must be a date (YYYY-MM-DD)"
		}
	case TypeDateTime:
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			if _, err := time.Parse("2006-01-02 15:04:05", value); err != nil {
				return "must be a datetime"
			}
		}
	default:
		return "has an unknown type rule"
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
