// Package validate holds checks for partially generated text, meant for
// inference.Validate.Check.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Check reports whether a completion is acceptable.
type Check func(string) bool

// JSON checks that a completion is a valid fragment of a JSON value once it
// is placed after Pre inside {"x": ...}. A hole inside a string literal
// uses String; one inside an array uses List.
type JSON struct {
	Pre string
}

func (j JSON) String(s string) bool {
	return parses(`{"x":"`+j.Pre+s+`"}`, nil)
}

func (j JSON) Number(s string) bool {
	return parses(`{"x":`+j.Pre+s+`}`, func(v any) bool {
		_, ok := v.(float64)
		return ok
	})
}

func (j JSON) Bool(s string) bool {
	return parses(`{"x":`+j.Pre+s+`}`, func(v any) bool {
		_, ok := v.(bool)
		return ok
	})
}

func (j JSON) List(s string) bool {
	return parses(`{"x":[`+j.Pre+s+`]}`, nil)
}

var (
	JSONString Check = JSON{}.String
	JSONNumber Check = JSON{}.Number
	JSONBool   Check = JSON{}.Bool
	JSONList   Check = JSON{}.List
)

func parses(doc string, assert func(any) bool) bool {
	var v struct {
		X any `json:"x"`
	}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return false
	}
	return assert == nil || assert(v.X)
}

// ParseJSON returns the JSON check named kind: str, num, bool or list.
func ParseJSON(kind, pre string) (Check, error) {
	j := JSON{Pre: pre}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "str", "string":
		return j.String, nil
	case "num", "number":
		return j.Number, nil
	case "bool", "boolean":
		return j.Bool, nil
	case "list", "array":
		return j.List, nil
	}
	return nil, fmt.Errorf("unknown json check %q", kind)
}

// MinLength accepts completions of at least n runes.
func MinLength(n int) Check {
	return func(s string) bool { return utf8.RuneCountInString(s) >= n }
}

// MaxLength accepts completions of at most n runes.
func MaxLength(n int) Check {
	return func(s string) bool { return utf8.RuneCountInString(s) <= n }
}

// NotEmpty rejects completions that are blank.
func NotEmpty(s string) bool { return strings.TrimSpace(s) != "" }

// All accepts a completion when every check does. Nil checks are skipped.
func All(checks ...Check) Check {
	return func(s string) bool {
		for _, c := range checks {
			if c != nil && !c(s) {
				return false
			}
		}
		return true
	}
}
