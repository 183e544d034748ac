// Package policy decodes IAM policy documents and flattens their statements
// into permission rows.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Document Model
// =============================================================================

// Document is a decoded IAM policy document.
type Document struct {
	Version   string     `json:"Version,omitempty"`
	ID        string     `json:"Id,omitempty"`
	Statement Statements `json:"Statement"`
}

// Statement is one rule of a policy document. A nil list means the field was
// absent; an empty non-nil list means it was present but empty. Sid follows
// the same rule: nil when absent, "" when present but empty.
type Statement struct {
	Sid         *string    `json:"Sid,omitempty"`
	Effect      string     `json:"Effect"`
	Action      StringList `json:"Action,omitempty"`
	NotAction   StringList `json:"NotAction,omitempty"`
	Resource    StringList `json:"Resource,omitempty"`
	NotResource StringList `json:"NotResource,omitempty"`
	Condition   any        `json:"Condition,omitempty"`
}

// Statements accepts either a single statement object or a list of them.
type Statements []Statement

// UnmarshalJSON implements json.Unmarshaler.
func (s *Statements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var stmt Statement
		if err := decodeNumbers(trimmed, &stmt); err != nil {
			return err
		}
		*s = Statements{stmt}
		return nil
	}

	var list []Statement
	if err := decodeNumbers(trimmed, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// StringList accepts either a bare string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = StringList{}
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		if list == nil {
			list = []string{}
		}
		*l = list
		return nil
	}

	// Some hand-written policies use bare booleans
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*l = StringList{strconv.FormatBool(b)}
		return nil
	}

	return fmt.Errorf("expected string or list of strings, got %s", string(data))
}

// =============================================================================
// Decoding
// =============================================================================

// Decode normalizes raw into a Document. raw may be a *Document or Document
// (returned as is), a JSON string or byte slice, a URL-percent-encoded JSON
// string as returned by the IAM API, or a generic map as produced by
// unmarshalling JSON into any.
func Decode(raw any) (*Document, error) {
	switch v := raw.(type) {
	case *Document:
		if v == nil {
			return nil, fmt.Errorf("%w: nil document", core.ErrMalformedDocument)
		}
		return v, nil
	case Document:
		return &v, nil
	case string:
		return decodeString(v)
	case []byte:
		return decodeString(string(v))
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedDocument, err)
		}
		return parse(data)
	default:
		return nil, fmt.Errorf("%w: unsupported document type %T", core.ErrMalformedDocument, raw)
	}
}

func decodeString(s string) (*Document, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		unescaped, err := url.PathUnescape(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrMalformedDocument, err)
		}
		s = strings.TrimSpace(unescaped)
	}
	return parse([]byte(s))
}

func parse(data []byte) (*Document, error) {
	var doc Document
	if err := decodeNumbers(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedDocument, err)
	}
	return &doc, nil
}

// decodeNumbers decodes with json.Number so condition values keep their
// original textual form.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
