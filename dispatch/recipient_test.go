package dispatch

import "testing"

func TestNormalizeRecipient(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+961 3 578 883", "9613578883@c.us", true},
		{"9613578883", "9613578883@c.us", true},
		{"009613578883", "9613578883@c.us", true},
		{"3578883", "9613578883@c.us", true},
		{"03578883", "9613578883@c.us", true},
		{"70123456", "96170123456@c.us", true},
		{"81-123-456", "96181123456@c.us", true},
		{"961-3-578-883", "9613578883@c.us", true},
		{"9613578883@c.us", "9613578883@c.us", true},
		{"+14155552671", "14155552671@c.us", true},
		{"123", "", false},
		{"", "", false},
		{"   ", "", false},
		{"abc", "", false},
		{"12345678", "", false}, // 8 digits, unrecognized lead: no country code to apply
	}
	for _, tc := range cases {
		got, ok := NormalizeRecipient(tc.in, DefaultCountryCode, DefaultDomainSuffix)
		if ok != tc.ok || got != tc.want {
			t.Errorf("NormalizeRecipient(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeAllDedupes(t *testing.T) {
	out := normalizeAll(
		[]string{"3578883", "+961 3 578 883", "123", "70123456"},
		DefaultCountryCode, DefaultDomainSuffix,
	)
	want := []string{"9613578883@c.us", "96170123456@c.us"}
	if len(out) != len(want) {
		t.Fatalf("normalizeAll = %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("normalizeAll = %v, want %v", out, want)
		}
	}
}
