package tenant

import (
	"errors"
	"testing"
)

func TestParseShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want ID
	}{
		{"string", "abc123", "abc123"},
		{"string with spaces", "  abc123\n", "abc123"},
		{"int", 42, "42"},
		{"int64", int64(9002), "9002"},
		{"json number", float64(7), "7"},
		{"userId member", map[string]any{"userId": "u-1"}, "u-1"},
		{"snake member", map[string]any{"user_id": 55}, "55"},
		{"nested user object", map[string]any{"user": map[string]any{"id": "deep"}}, "deep"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%v): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, in := range []any{
		nil,
		"",
		"   ",
		"a/b",
		3.14,
		[]string{"nope"},
		map[string]any{"name": "no id here"},
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%v): want ErrInvalid, got %v", in, err)
		}
	}
}
