package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const dateLayout = "2006-01-02"

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// envelopeSchema constrains the overall shape of the model's answer before
// any field is looked at. Only structure is enforced here: item contents are
// checked per-item and the date per-value afterwards, so a single garbled
// field doesn't fail the whole extraction.
func envelopeSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []any{"items"},
		"additionalProperties": true,
		"properties": map[string]any{
			"items": map[string]any{"type": "array"},
		},
	}
}

var compiledEnvelope = mustCompileSchema(envelopeSchema())

func mustCompileSchema(m map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// Normalize turns the raw model text into a validated Result.
//
// The text may arrive wrapped in markdown code fences and padded with prose
// despite the prompt forbidding both, so known wrappers are removed and the
// JSON object is located by its braces. Anything beyond that is rejected
// rather than guessed at: a fuzzy read of financial data is worse than an
// error the user can retry.
func Normalize(text string) (*Result, error) {
	cleaned := stripWrappers(text)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return nil, &MalformedResponseError{Raw: text, Err: errors.New("no JSON object in response")}
	}
	payload := []byte(cleaned[start : end+1])

	var generic any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}
	if err := compiledEnvelope.Validate(generic); err != nil {
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}

	var wire struct {
		Date  any               `json:"date"`
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, &MalformedResponseError{Raw: text, Err: err}
	}

	// A date of any non-string type (models emit numbers like 20240301) is
	// content garbage, not a structural failure: it becomes empty and the
	// mapper falls back to the commit-time date.
	res := &Result{}
	if s, ok := wire.Date.(string); ok {
		res.Date = normalizeDate(s)
	}
	for _, raw := range wire.Items {
		item, ok := coerceItem(raw)
		if !ok {
			res.Dropped++
			continue
		}
		res.Items = append(res.Items, item)
	}

	if len(res.Items) == 0 {
		if res.Dropped > 0 {
			return nil, fmt.Errorf("%w (%d dropped)", ErrEmptyExtraction, res.Dropped)
		}
		return nil, ErrEmptyExtraction
	}
	return res, nil
}

// stripWrappers removes markdown code fences anywhere in the text. Models
// add them despite instructions, sometimes around prose as well as JSON.
func stripWrappers(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// normalizeDate keeps a date only when it matches the ISO calendar-date
// pattern and denotes a real date; everything else becomes empty so the
// mapper falls back to the commit-time date instead of keeping garbage.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if !isoDatePattern.MatchString(s) {
		return ""
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return ""
	}
	return d.Format(dateLayout)
}

// coerceItem validates a single wire item {item, quantity, price}. Items
// without a usable name or price are dropped, never defaulted to zero; a
// missing or invalid quantity defaults to 1.
func coerceItem(raw json.RawMessage) (Item, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Item{}, false
	}

	name, _ := m["item"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, false
	}

	price, ok := coercePrice(m["price"])
	if !ok || price < 0 {
		return Item{}, false
	}

	return Item{
		Name:     name,
		Quantity: coerceQuantity(m["quantity"]),
		Price:    price,
	}, true
}

func coercePrice(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func coerceQuantity(v any) int {
	f, ok := v.(float64)
	if !ok || f < 1 || f != math.Trunc(f) {
		return 1
	}
	return int(f)
}
