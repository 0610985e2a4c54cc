package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBooleanFromText(t *testing.T) {
	tests := []struct {
		input string
		want  *bool
	}{
		{"YES", boolPtr(true)},
		{"yes", boolPtr(true)},
		{" TRUE ", boolPtr(true)},
		{"**YES**", boolPtr(true)},
		{"no", boolPtr(false)},
		{"NO.", boolPtr(false)},
		{"FALSE", boolPtr(false)},
		{"maybe", nil},
		{"", nil},
		{"I think yes, probably", nil},
	}

	for _, tt := range tests {
		got := ParseBooleanFromText(tt.input)
		if tt.want == nil {
			assert.Nil(t, got, "input %q", tt.input)
		} else {
			require.NotNil(t, got, "input %q", tt.input)
			assert.Equal(t, *tt.want, *got, "input %q", tt.input)
		}
	}
}

func TestParseShouldRespondFromText(t *testing.T) {
	assert.Equal(t, "RESPOND", ParseShouldRespondFromText("[RESPOND]\nbecause the user asked a direct question"))
	assert.Equal(t, "IGNORE", ParseShouldRespondFromText("IGNORE"))
	assert.Equal(t, "IGNORE", ParseShouldRespondFromText("the agent should IGNORE this one"))
	assert.Equal(t, "STOP", ParseShouldRespondFromText("STOP"))
	assert.Equal(t, "RESPOND", ParseShouldRespondFromText("respond"))
	assert.Equal(t, "", ParseShouldRespondFromText("no directive here"))

	// 首行优先于全文子串
	assert.Equal(t, "RESPOND", ParseShouldRespondFromText("RESPOND\nbut maybe STOP later"))
}

func TestParseJSONObjectFromText(t *testing.T) {
	// 纯 JSON
	obj := ParseJSONObjectFromText(`{"user":"alice","action":"WAVE"}`)
	require.NotNil(t, obj)
	assert.Equal(t, "alice", obj["user"])

	// markdown 代码块
	obj = ParseJSONObjectFromText("Here you go:\n```json\n{\"text\": \"hi\"}\n```\nHope that helps!")
	require.NotNil(t, obj)
	assert.Equal(t, "hi", obj["text"])

	// 前后缀噪音
	obj = ParseJSONObjectFromText(`Sure! {"a": 1} is the answer.`)
	require.NotNil(t, obj)
	assert.EqualValues(t, 1, obj["a"])

	// 尾逗号
	obj = ParseJSONObjectFromText(`{"a": 1,}`)
	require.NotNil(t, obj)

	assert.Nil(t, ParseJSONObjectFromText("no json at all"))
	assert.Nil(t, ParseJSONObjectFromText(""))
}

func TestParseJSONArrayFromText(t *testing.T) {
	arr := ParseJSONArrayFromText(`["a","b"]`)
	require.Len(t, arr, 2)

	arr = ParseJSONArrayFromText("```json\n[1, 2, 3]\n```")
	require.Len(t, arr, 3)

	assert.Nil(t, ParseJSONArrayFromText("nothing"))
}

func TestParseStringArrayFromText(t *testing.T) {
	got := ParseStringArrayFromText(`The relevant evaluators are: ["GOAL_TRACKER", "FACT_EXTRACTOR"]`)
	assert.Equal(t, []string{"GOAL_TRACKER", "FACT_EXTRACTOR"}, got)

	// 非字符串元素被丢弃
	got = ParseStringArrayFromText(`["keep", 42, "also"]`)
	assert.Equal(t, []string{"keep", "also"}, got)
}

func boolPtr(b bool) *bool { return &b }
