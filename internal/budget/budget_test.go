package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.SystemMessage("hello world"),
	}
	// user: 4 + Estimate("user")=1 + 2 = 7; system: 4 + Estimate("system")=1 + 2 = 7.
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimPassages_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	passages := []string{"first passage", "second passage"}
	got := TrimPassages(passages, 10, DefaultMaxContextTokens)
	if len(got) != 2 {
		t.Errorf("want 2 passages, got %d", len(got))
	}
}

func Test_TrimPassages_DropsFarthest(t *testing.T) {
	t.Parallel()
	passages := []string{
		strings.Repeat("a", 40), // 10 tokens
		strings.Repeat("b", 40), // 10 tokens
		strings.Repeat("c", 40), // 10 tokens
	}
	// fixed 5 + 10 + 10 = 25 fits; the third would reach 35.
	got := TrimPassages(passages, 5, 30)
	if len(got) != 2 {
		t.Fatalf("want 2 passages, got %d", len(got))
	}
	if got[0][0] != 'a' || got[1][0] != 'b' {
		t.Errorf("nearest passages not retained in order: %q", got)
	}
}

func Test_TrimPassages_FixedExceedsBudget(t *testing.T) {
	t.Parallel()
	got := TrimPassages([]string{"x"}, 100, 50)
	if len(got) != 0 {
		t.Errorf("want no passages, got %q", got)
	}
}

func Test_TrimPassages_Disabled(t *testing.T) {
	t.Parallel()
	passages := []string{strings.Repeat("z", 10000)}
	if got := TrimPassages(passages, 0, 0); len(got) != 1 {
		t.Errorf("maxTokens=0 should disable trimming, got %d passages", len(got))
	}
}
