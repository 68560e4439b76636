package cleanup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced json envelope", in: "```json\n{\"prompt\": \"X\"}\n```", want: "X"},
		{name: "bare fence", in: "```\nred kite over dunes\n```", want: "red kite over dunes"},
		{name: "envelope with prose", in: "Sure! Here it is: {\"prompt\": \"a fox\"} Enjoy.", want: "a fox"},
		{name: "single unknown field", in: `{"idea": "neon koi"}`, want: "neon koi"},
		{name: "escaped quotes survive", in: `{"prompt": "the \"last\" train"}`, want: `the "last" train`},
		{name: "quoted", in: `"lonely lighthouse"`, want: "lonely lighthouse"},
		{name: "imagine label", in: "/imagine prompt: isometric city --v 6.0", want: "isometric city --v 6.0"},
		{name: "nested wrappers", in: "```json\n{\"prompt\": \"Prompt: \\\"dawn\\\"\"}\n```", want: "dawn"},
		{name: "braces that are not json", in: "a {curly} idea", want: "a {curly} idea"},
		{name: "already clean", in: "minimalist mountain logo, flat vector", want: "minimalist mountain logo, flat vector"},
		{name: "empty", in: "   ", want: ""},
		{name: "trailing quoted word", in: `neon sign reading "OPEN"`, want: `neon sign reading "OPEN"`},
		{name: "leading quoted word", in: `"Sale" banner on a red wall`, want: `"Sale" banner on a red wall`},
		{name: "quoted words at both ends", in: `"Sale" banner reading "OPEN"`, want: `"Sale" banner reading "OPEN"`},
		{name: "envelope ending in a quoted word", in: `{"prompt": "poster with the word \"SALE\""}`, want: `poster with the word "SALE"`},
		{name: "many stacked labels", in: strings.Repeat("prompt: ", 20) + "fox", want: "fox"},
		{name: "unbalanced quote kept", in: `12" vinyl record sleeve`, want: `12" vinyl record sleeve`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		strings.Repeat("prompt: ", 20) + "fox",
		strings.Repeat(`"`, 20) + "deep" + strings.Repeat(`"`, 20),
		`neon sign reading "OPEN"`,
		"```json\n{\"prompt\": \"X\"}\n```",
		`"'double wrapped'"`,
		"Prompt: prompt: twice labelled",
		"plain text",
		`{"a": 1, "b": 2}`,
		"``````",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.NotContains(t, once, "prompt: prompt:", "input %q", in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestExtractField(t *testing.T) {
	got, err := ExtractField("```json\n{\"prompt\": \" cozy cabin \", \"mode\": \"x\"}\n```", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "cozy cabin", got)

	_, err = ExtractField("no json here", "prompt")
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = ExtractField(`{"text": "x"}`, "prompt")
	assert.ErrorIs(t, err, ErrUnparseable)

	_, err = ExtractField(`{"prompt": 42}`, "prompt")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestLenient(t *testing.T) {
	assert.Equal(t, "X", Lenient(`{"prompt": "X"}`, "prompt"))
	assert.Equal(t, "raw idea", Lenient("```\nraw idea\n```", "prompt"))
}
