package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xhad/driftrag/internal/types"
)

type Citation struct {
	Source  string `json:"source"`
	Excerpt string `json:"excerpt"`
}

// Item is one insight or fix item: a typed, named, short value.
type Item struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UnmarshalJSON also accepts a bare number, boolean, null or nested value for
// Value. Models often write amounts and percentages as numbers.
func (i *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, err := valueText(raw.Value)
	if err != nil {
		return err
	}
	*i = Item{Type: raw.Type, Name: raw.Name, Value: value}
	return nil
}

func valueText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}

	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	}
}

// Reply is the structured answer the model is asked to produce.
type Reply struct {
	Summary     string     `json:"summary,omitempty"`
	Answer      string     `json:"answer,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	CompanyName string     `json:"company_name,omitempty"`
	Positive    string     `json:"positive,omitempty"`
	Negative    string     `json:"negative,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	Insights    []Item     `json:"insights,omitempty"`
	FixItems    []Item     `json:"fixitems,omitempty"`
}

// ExtractJSON returns the text between the first '{' and the last '}'.
// Models often wrap the object in prose or code fences.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", &types.ParseError{Reason: "no JSON object found", Raw: text}
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", &types.ParseError{Reason: "invalid JSON object", Raw: text}
	}
	return candidate, nil
}

func ParseReply(text string) (*Reply, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, &types.ParseError{Reason: err.Error(), Raw: text}
	}
	return &reply, nil
}

// HistoryText is what gets remembered of the reply in the conversation:
// the summary, else the answer, else the explanation.
func (r *Reply) HistoryText() (string, error) {
	for _, s := range []string{r.Summary, r.Answer, r.Explanation} {
		if strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", &types.ParseError{Reason: "reply has no summary, answer or explanation"}
}
