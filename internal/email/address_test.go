package email

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  AddressList
	}{
		{name: "absent", input: nil, want: nil},
		{name: "empty string", input: "", want: nil},
		{name: "string", input: "a@x.com", want: AddressList{{Email: "a@x.com"}}},
		{name: "address", input: Address{Name: "A", Email: "a@x.com"}, want: AddressList{{Name: "A", Email: "a@x.com"}}},
		{name: "string list", input: []string{"a@x.com", "b@x.com"}, want: AddressList{{Email: "a@x.com"}, {Email: "b@x.com"}}},
		{name: "address list", input: []Address{{Email: "a@x.com"}}, want: AddressList{{Email: "a@x.com"}}},
		{name: "empty list", input: []string{}, want: nil},
		{
			name:  "mixed",
			input: []any{"a@x.com", map[string]any{"name": "B", "email": "b@x.com"}},
			want:  AddressList{{Email: "a@x.com"}, {Name: "B", Email: "b@x.com"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestAddressString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a@x.com", Address{Email: "a@x.com"}.String())
	assert.Equal(t, "Alice <a@x.com>", Address{Name: "Alice", Email: "a@x.com"}.String())
	assert.Equal(t, "a@x.com, Bob <b@x.com>", AddressList{{Email: "a@x.com"}, {Name: "Bob", Email: "b@x.com"}}.Join())
}

func TestOptionsDecodeJSON(t *testing.T) {
	t.Parallel()

	raw := `{
		"from": {"name": "Sender", "email": "s@example.com"},
		"to": "a@example.com",
		"cc": ["b@example.com", {"name": "C", "email": "c@example.com"}],
		"subject": "Hi",
		"text": "hello",
		"dsnOverride": {"envelopeId": "env-1", "RET": {"HEADERS": true}, "NOTIFY": {"FAILURE": true}}
	}`

	var opts Options
	require.NoError(t, json.Unmarshal([]byte(raw), &opts))

	assert.Equal(t, Address{Name: "Sender", Email: "s@example.com"}, opts.From)
	assert.Equal(t, AddressList{{Email: "a@example.com"}}, opts.To)
	assert.Equal(t, AddressList{{Email: "b@example.com"}, {Name: "C", Email: "c@example.com"}}, opts.CC)
	require.NotNil(t, opts.DSNOverride)
	assert.Equal(t, "env-1", opts.DSNOverride.EnvelopeID)
	assert.True(t, opts.DSNOverride.Ret.Headers)
	assert.True(t, opts.DSNOverride.Notify.Failure)
}

func TestOptionsDecodeYAML(t *testing.T) {
	t.Parallel()

	raw := `
from: s@example.com
to:
  - a@example.com
  - name: B
    email: b@example.com
reply: {name: R, email: r@example.com}
subject: Hi
html: <p>hello</p>
attachments:
  - filename: a.txt
    content: aGVsbG8=
`

	var opts Options
	require.NoError(t, yaml.Unmarshal([]byte(raw), &opts))

	assert.Equal(t, Address{Email: "s@example.com"}, opts.From)
	assert.Equal(t, AddressList{{Email: "a@example.com"}, {Name: "B", Email: "b@example.com"}}, opts.To)
	require.NotNil(t, opts.Reply)
	assert.Equal(t, "R <r@example.com>", opts.Reply.String())
	require.Len(t, opts.Attachments, 1)
	assert.Equal(t, "aGVsbG8=", opts.Attachments[0].Content)
}

func TestAddressDecodeRejectsList(t *testing.T) {
	t.Parallel()

	var a Address
	assert.Error(t, json.Unmarshal([]byte(`["a@x.com", "b@x.com"]`), &a))
}

func TestAddressDecodeEmpty(t *testing.T) {
	t.Parallel()

	var fromJSON Options
	require.NoError(t, json.Unmarshal([]byte(`{"from": null, "reply": "", "to": "a@example.com", "text": "hi"}`), &fromJSON))
	assert.True(t, fromJSON.From.IsZero())
	require.NotNil(t, fromJSON.Reply)
	assert.True(t, fromJSON.Reply.IsZero())

	var fromYAML Options
	require.NoError(t, yaml.Unmarshal([]byte("from: s@example.com\nreply: \"\"\nto: a@example.com\ntext: hi\n"), &fromYAML))
	require.NotNil(t, fromYAML.Reply)
	assert.True(t, fromYAML.Reply.IsZero())

	msg, err := New(fromYAML)
	require.NoError(t, err)
	assert.Nil(t, msg.Reply())
	assert.NotContains(t, string(msg.Payload()), "Reply-To:")
}
