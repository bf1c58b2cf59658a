package semver

import (
	"testing"
)

func TestParse(t *testing.T) {
	testcases := []struct {
		input    string
		expected string
		err      bool
	}{
		{input: "1.2.16", expected: "1.2.16"},
		{input: "v1.2.16", expected: "1.2.16"},
		{input: " 6.10.0 \n", expected: "6.10.0"},
		{input: "3.12.4.100", expected: "3.12.4-100"},
		{input: "not-a-version", err: true},
		{input: "", err: true},
	}

	for _, tc := range testcases {
		v, err := Parse(tc.input)
		if tc.err {
			if err == nil {
				t.Errorf("expected error for input %q", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for input %q: %v", tc.input, err)
			continue
		}
		if v.String() != tc.expected {
			t.Errorf("unexpected version for input %q: expected=%s, got=%s", tc.input, tc.expected, v.String())
		}
	}
}
