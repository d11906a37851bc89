// Package tenant defines the canonical tenant identifier used throughout the
// gateway. Callers at the system boundary parse whatever shape their transport
// delivered (a string, a number, or a decoded request object) exactly once via
// Parse; everything downstream works with the resulting ID and never re-parses.
package tenant

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalid indicates input that cannot be reduced to a tenant ID. It is a
// validation-category failure: no session state has been touched.
var ErrInvalid = errors.New("invalid tenant id")

// ID is the canonical string form of a tenant identifier.
type ID string

func (id ID) String() string { return string(id) }

// Parse reduces boundary input to a canonical tenant ID.
//
// Accepted shapes:
//   - string (trimmed; must be non-empty)
//   - integer and float values carrying an integral number
//   - map[string]any request objects with "userId", "user_id", or a nested
//     {"user": {"id": ...}} member
//
// Anything else fails with ErrInvalid.
func Parse(v any) (ID, error) {
	switch t := v.(type) {
	case ID:
		return parseString(string(t))
	case string:
		return parseString(t)
	case int:
		return ID(strconv.Itoa(t)), nil
	case int32:
		return ID(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return ID(strconv.FormatInt(t, 10)), nil
	case float64:
		// JSON numbers decode as float64; only integral values are IDs.
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return "", fmt.Errorf("%w: non-integral number %v", ErrInvalid, t)
		}
		return ID(strconv.FormatInt(int64(t), 10)), nil
	case map[string]any:
		for _, key := range []string{"userId", "user_id", "id"} {
			if inner, ok := t[key]; ok {
				return Parse(inner)
			}
		}
		if inner, ok := t["user"]; ok {
			return Parse(inner)
		}
		return "", fmt.Errorf("%w: object carries no user id member", ErrInvalid)
	case nil:
		return "", fmt.Errorf("%w: missing", ErrInvalid)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalid, v)
	}
}

// MustParse is a test and wiring convenience that panics on invalid input.
func MustParse(v any) ID {
	id, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return id
}

func parseString(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	// IDs become filesystem path segments (durable login data directories), so
	// reject separators outright.
	if strings.ContainsAny(s, "/\\\x00") {
		return "", fmt.Errorf("%w: %q contains path separators", ErrInvalid, s)
	}
	return ID(s), nil
}
