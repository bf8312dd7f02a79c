// Package listing normalises catalog car listings into the canonical schema.
package listing

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// configParamIDs are the configuration parameters kept in the canonical record.
var configParamIDs = map[int]struct{}{
	3: {}, 6: {}, 11: {}, 13: {}, 14: {}, 17: {}, 20: {}, 23: {}, 24: {},
	38: {}, 40: {}, 41: {}, 42: {}, 43: {}, 44: {}, 46: {}, 47: {}, 48: {},
	49: {}, 50: {}, 53: {}, 58: {}, 88: {}, 90: {}, 91: {}, 92: {}, 93: {},
	95: {}, 97: {}, 101: {}, 108: {}, 115: {}, 116: {},
}

// Validation bounds.
const (
	minYear         = 1900
	maxYear         = 2100
	maxPrice        = 100_000_000
	maxKmAge        = 10_000_000
	maxPower        = 10_000
	maxDisplacement = 20.0
)

// Normaliser converts raw listing payloads. It holds no mutable state and
// is safe for concurrent use.
type Normaliser struct {
	lang string
}

// New creates a listing normaliser for source-language text in lang.
func New(lang string) *Normaliser {
	return &Normaliser{lang: lang}
}

// Normalise converts raw into a processed record using dict.
// The result depends only on raw.Payload, raw identity fields and dict.
func (n *Normaliser) Normalise(raw *domain.RawRecord, dict *domain.DictionarySnapshot) (*domain.ProcessedRecord, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	data, err := raw.Decode()
	if err != nil {
		return nil, &domain.SchemaValidationError{ExternalID: raw.ExternalID, Reason: "payload is not a JSON object"}
	}

	t := newTranslator(dict, n.lang)
	l := domain.Listing{
		URL:               str(data["url"]),
		Mark:              t.translate(str(data["mark"])),
		Model:             t.translate(str(data["model"])),
		Color:             t.translate(str(data["color"])),
		EngineType:        t.translate(str(data["engine_type"])),
		TransmissionType:  t.translate(str(data["transmission_type"])),
		BodyType:          t.translate(str(data["body_type"])),
		Address:           t.translate(str(data["address"])),
		Section:           t.translate(str(data["section"])),
		DriveType:         t.translate(str(data["drive_type"])),
		Description:       str(data["description"]),
		VIN:               strings.TrimSpace(str(data["vin"])),
		OfferCreated:      date(data["offer_created"]),
		FirstRegistration: date(data["first_registration"]),
		Year:              integer(data["year"]),
		Price:             integer(data["price"]),
		KmAge:             integer(data["km_age"]),
		Power:             integer(data["power"]),
		Displacement:      decimal(data["displacement"]),
		Images:            images(data["images"]),
		Options:           options(data, t),
		Configuration:     configuration(data, t),
	}

	if err := validate(raw.ExternalID, &l); err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(t.misses))
	for tok := range t.misses {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	return &domain.ProcessedRecord{
		ExternalID:         raw.ExternalID,
		Listing:            l,
		SourceVersion:      raw.Version,
		DictionaryVersion:  dict.Version(),
		HasUntranslated:    len(tokens) > 0,
		UntranslatedTokens: tokens,
		Active:             true,
	}, nil
}

func validate(id string, l *domain.Listing) error {
	fail := func(field, reason string) error {
		return &domain.SchemaValidationError{ExternalID: id, Field: field, Reason: reason}
	}
	if l.Year != nil && (*l.Year < minYear || *l.Year > maxYear) {
		return fail("year", "out of range: "+strconv.Itoa(*l.Year))
	}
	if l.Price != nil && (*l.Price < 0 || *l.Price > maxPrice) {
		return fail("price", "out of range: "+strconv.Itoa(*l.Price))
	}
	if l.KmAge != nil && (*l.KmAge < 0 || *l.KmAge > maxKmAge) {
		return fail("km_age", "out of range: "+strconv.Itoa(*l.KmAge))
	}
	if l.Power != nil && (*l.Power < 0 || *l.Power > maxPower) {
		return fail("power", "out of range: "+strconv.Itoa(*l.Power))
	}
	if l.Displacement != nil && (*l.Displacement < 0 || *l.Displacement > maxDisplacement) {
		return fail("displacement", "out of range: "+strconv.FormatFloat(*l.Displacement, 'f', -1, 64))
	}
	return nil
}

// str renders scalar JSON values as text. Objects and arrays yield "".
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// integer parses a count, keeping only the digits of string values and a
// leading minus sign.
func integer(v any) *int {
	switch x := v.(type) {
	case float64:
		if x == 0 {
			return nil
		}
		n := int(x)
		return &n
	case string:
		digits := keep(x, func(r rune) bool { return r >= '0' && r <= '9' })
		if digits == "" {
			return nil
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n == 0 {
			return nil
		}
		if negative(x) {
			n = -n
		}
		return &n
	default:
		return nil
	}
}

// decimal parses a volume such as "2.0T" or "1.5L".
func decimal(v any) *float64 {
	switch x := v.(type) {
	case float64:
		if x == 0 {
			return nil
		}
		return &x
	case string:
		digits := keep(x, func(r rune) bool { return (r >= '0' && r <= '9') || r == '.' })
		if digits == "" {
			return nil
		}
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil || f == 0 {
			return nil
		}
		if negative(x) {
			f = -f
		}
		return &f
	default:
		return nil
	}
}

// date accepts YYYY-MM-DD, YYYY-MM (day 01 assumed) or a timestamp with a
// date prefix, and returns YYYY-MM-DD. Unparseable values yield "".
func date(v any) string {
	s := strings.TrimSpace(str(v))
	if len(s) == 7 && s[4] == '-' {
		s += "-01"
	}
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func images(v any) []string {
	var list []any
	switch x := v.(type) {
	case []any:
		list = x
	case string:
		if err := json.Unmarshal([]byte(x), &list); err != nil {
			return nil
		}
	default:
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// options collects translated option names from extra.option in source order.
func options(data map[string]any, t *translator) []string {
	extra, _ := data["extra"].(map[string]any)
	opt, _ := extra["option"].(map[string]any)
	if opt == nil {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(item any) {
		m, _ := item.(map[string]any)
		name := t.translate(str(m["optionname"]))
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	if display, ok := opt["displayopts"].([]any); ok {
		for _, item := range display {
			add(item)
		}
	}
	if more, ok := opt["moreoptions"].([]any); ok {
		for _, group := range more {
			g, _ := group.(map[string]any)
			opts, _ := g["opts"].([]any)
			for _, item := range opts {
				add(item)
			}
		}
	}
	return out
}

// configuration keeps the selected parameter ids from configuration or
// extra.configuration, keyed by id.
func configuration(data map[string]any, t *translator) map[string]domain.ConfigParam {
	cfg, _ := data["configuration"].(map[string]any)
	if len(cfg) == 0 {
		extra, _ := data["extra"].(map[string]any)
		cfg, _ = extra["configuration"].(map[string]any)
	}
	types, _ := cfg["paramtypeitems"].([]any)
	if len(types) == 0 {
		return nil
	}

	out := make(map[string]domain.ConfigParam)
	for _, pt := range types {
		ptm, _ := pt.(map[string]any)
		items, _ := ptm["paramitems"].([]any)
		for _, item := range items {
			p, _ := item.(map[string]any)
			id, ok := paramID(p["id"])
			if !ok {
				continue
			}
			if _, want := configParamIDs[id]; !want {
				continue
			}
			out[strconv.Itoa(id)] = domain.ConfigParam{
				Name:  t.translate(str(p["name"])),
				Value: t.translate(str(p["value"])),
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func paramID(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		return n, err == nil
	default:
		return 0, false
	}
}

func negative(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "-")
}

func keep(s string, ok func(rune) bool) string {
	var b strings.Builder
	for _, r := range s {
		if ok(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
