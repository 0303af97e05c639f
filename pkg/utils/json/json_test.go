package json

import (
	"bytes"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Cache   bool     `json:"cache"`
	Usage   *int     `json:"usage,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := payload{Answer: "a <b> & c", Sources: []string{"s1"}, Cache: true}

	data, err := Marshal(in)
	require.NoError(t, err)
	// ConfigStd 与 encoding/json 一样转义 HTML 字符
	assert.NotContains(t, string(data), `<b>`)
	assert.NotContains(t, string(data), "usage")

	var out payload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalString(t *testing.T) {
	s, err := MarshalString(map[string]int{"k": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, s)
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(payload{Answer: "x"}))

	var out payload
	require.NoError(t, NewDecoder(strings.NewReader(buf.String())).Decode(&out))
	assert.Equal(t, "x", out.Answer)
}

func TestIsUsingSonic(t *testing.T) {
	expected := runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	assert.Equal(t, expected, IsUsingSonic())
}
