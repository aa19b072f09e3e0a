// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/paperflow/pkg/types"
)

const fence = "```"

// StripCodeFence removes an optional Markdown code fence around s. The
// opening fence may carry a language tag ("```json") and the body may start
// on the fence line; the closing fence is optional. Unfenced input is
// returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, fence); ok {
		s = strings.TrimLeftFunc(rest, isASCIILetter)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

func isASCIILetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

// ParseMetadata decodes the agent's raw output into PaperMetadata. The
// decoding tolerates the shapes LLMs commonly produce: year as a number or
// numeric string, authors and keywords as a string or a list of strings,
// and null for any field.
func ParseMetadata(raw string) (types.PaperMetadata, error) {
	body := StripCodeFence(raw)
	if !strings.HasPrefix(body, "{") {
		return types.PaperMetadata{}, fmt.Errorf("agent output is not a JSON object: %q", snippet(body))
	}

	var w wireMetadata
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&w); err != nil {
		return types.PaperMetadata{}, fmt.Errorf("decoding agent output: %w", err)
	}

	return types.PaperMetadata{
		Title:    string(w.Title),
		Authors:  string(w.Authors),
		Year:     int(w.Year),
		Abstract: string(w.Abstract),
		DOI:      string(w.DOI),
		Journal:  string(w.Journal),
		Keywords: string(w.Keywords),
		URL:      string(w.URL),
		ArxivID:  string(w.ArxivID),
	}, nil
}

// wireMetadata mirrors the agent's JSON with lenient field types.
type wireMetadata struct {
	Title    listString `json:"title"`
	Authors  listString `json:"authors"`
	Year     looseYear  `json:"year"`
	Abstract listString `json:"abstract"`
	DOI      listString `json:"doi"`
	Journal  listString `json:"journal"`
	Keywords listString `json:"keywords"`
	URL      listString `json:"url"`
	ArxivID  listString `json:"arxiv_id"`
}

// listString accepts a string, a list of strings (joined with ", ") or null.
type listString string

func (s *listString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var parts []*string
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		var out []string
		for _, p := range parts {
			if p != nil && strings.TrimSpace(*p) != "" {
				out = append(out, strings.TrimSpace(*p))
			}
		}
		*s = listString(strings.Join(out, ", "))
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		// Numbers and booleans keep their literal text.
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if _, ok := v.(map[string]any); ok {
			return errors.New("object where a string was expected")
		}
		*s = listString(string(b))
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = listString(strings.TrimSpace(v))
	return nil
}

// looseYear accepts a number, a numeric string, an empty string or null.
type looseYear int

func (y *looseYear) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*y = 0
		return nil
	}
	var n json.Number
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*y = 0
			return nil
		}
		n = json.Number(s)
	} else if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("year: %w", err)
	}

	if i, err := strconv.Atoi(n.String()); err == nil {
		*y = looseYear(i)
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return fmt.Errorf("year %q is not a number", n.String())
	}
	*y = looseYear(int(f))
	return nil
}

func snippet(s string) string {
	const max = 80
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
