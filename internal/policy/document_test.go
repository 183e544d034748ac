package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuharrell/catrole/internal/core"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		raw        any
		statements int
		firstSid   string
	}{
		{
			name:       "plain JSON string",
			raw:        `{"Version":"2012-10-17","Statement":[{"Sid":"A","Effect":"Allow","Action":"s3:GetObject","Resource":"*"}]}`,
			statements: 1,
			firstSid:   "A",
		},
		{
			name:       "URL encoded string",
			raw:        "%7B%22Version%22%3A%222012-10-17%22%2C%22Statement%22%3A%7B%22Sid%22%3A%22Enc%22%2C%22Effect%22%3A%22Allow%22%2C%22Action%22%3A%22*%22%2C%22Resource%22%3A%22*%22%7D%7D",
			statements: 1,
			firstSid:   "Enc",
		},
		{
			name:       "byte slice",
			raw:        []byte(`{"Statement":[{"Effect":"Deny","Action":["a","b"],"Resource":"*"},{"Effect":"Allow","Action":"c","Resource":"*"}]}`),
			statements: 2,
		},
		{
			name: "generic map",
			raw: map[string]any{
				"Statement": map[string]any{"Sid": "M", "Effect": "Allow", "Action": "iam:*", "Resource": "*"},
			},
			statements: 1,
			firstSid:   "M",
		},
		{
			name:       "missing statement",
			raw:        `{"Version":"2012-10-17"}`,
			statements: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode(tt.raw)
			require.NoError(t, err)
			require.Len(t, doc.Statement, tt.statements)
			if tt.firstSid != "" {
				require.NotNil(t, doc.Statement[0].Sid)
				assert.Equal(t, tt.firstSid, *doc.Statement[0].Sid)
			}
		})
	}
}

func TestDecodeStructuredDocumentIsReturnedAsIs(t *testing.T) {
	doc := &Document{Statement: Statements{{Effect: "Allow"}}}

	decoded, err := Decode(doc)
	require.NoError(t, err)
	assert.Same(t, doc, decoded)
}

func TestDecodeMalformed(t *testing.T) {
	inputs := map[string]any{
		"broken json":         `{"Statement": [`,
		"broken encoding":     "%7B%ZZ",
		"action of numbers":   `{"Statement":{"Effect":"Allow","Action":[1,2],"Resource":"*"}}`,
		"unsupported type":    42,
		"nil document":        (*Document)(nil),
		"statement is string": `{"Statement":"nope"}`,
	}

	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrMalformedDocument)
		})
	}
}

func TestStringListForms(t *testing.T) {
	doc, err := Decode(`{"Statement":[
		{"Effect":"Allow","Action":"s3:GetObject","Resource":["a","b"]},
		{"Effect":"Allow","NotAction":[],"NotResource":"x"},
		{"Effect":"Allow","Action":null}
	]}`)
	require.NoError(t, err)
	require.Len(t, doc.Statement, 3)

	assert.Equal(t, StringList{"s3:GetObject"}, doc.Statement[0].Action)
	assert.Equal(t, StringList{"a", "b"}, doc.Statement[0].Resource)
	assert.Nil(t, doc.Statement[0].NotAction)

	assert.NotNil(t, doc.Statement[1].NotAction)
	assert.Empty(t, doc.Statement[1].NotAction)
	assert.Nil(t, doc.Statement[1].Action)
	assert.Equal(t, StringList{"x"}, doc.Statement[1].NotResource)

	assert.NotNil(t, doc.Statement[2].Action)
	assert.Empty(t, doc.Statement[2].Action)
}
