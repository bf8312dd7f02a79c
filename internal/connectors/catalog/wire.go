package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/listsync/internal/core/domain"
	"github.com/custodia-labs/listsync/internal/logger"
)

// changeIDResponse accepts both {"change_id": N} and {"data": {"change_id": N}}.
type changeIDResponse struct {
	ChangeID flexInt `json:"change_id"`
	Data     *struct {
		ChangeID flexInt `json:"change_id"`
	} `json:"data"`
}

func (r changeIDResponse) id() int64 {
	if r.ChangeID != 0 {
		return int64(r.ChangeID)
	}
	if r.Data != nil {
		return int64(r.Data.ChangeID)
	}
	return 0
}

// listResponse is the envelope shared by /changes and /offers.
// Older deployments return the records under "data" instead of "result".
type listResponse struct {
	Result []wireRecord `json:"result"`
	Data   []wireRecord `json:"data"`
	Meta   struct {
		CurChangeID  flexInt `json:"cur_change_id"`
		NextChangeID flexInt `json:"next_change_id"`
		Page         flexInt `json:"page"`
		NextPage     flexInt `json:"next_page"`
	} `json:"meta"`
}

func (r *listResponse) records() []wireRecord {
	if len(r.Result) > 0 {
		return r.Result
	}
	return r.Data
}

// changes converts the envelope records, dropping any without an inner_id.
func (r *listResponse) changes(source string) []domain.Change {
	records := r.records()
	out := make([]domain.Change, 0, len(records))
	for i := range records {
		ch, ok := records[i].change()
		if !ok {
			logger.Warn("Catalog %s: record without inner_id skipped", source)
			continue
		}
		out = append(out, ch)
	}
	return out
}

// wireRecord is one record of a change or offers page. Offers pages may
// carry the listing fields at the top level rather than under "data".
type wireRecord struct {
	InnerID    flexString     `json:"inner_id"`
	ChangeType string         `json:"change_type"`
	CreatedAt  string         `json:"created_at"`
	Data       map[string]any `json:"data"`

	raw map[string]any
}

func (w *wireRecord) UnmarshalJSON(b []byte) error {
	type plain wireRecord
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*w = wireRecord(p)
	if w.Data == nil {
		return json.Unmarshal(b, &w.raw)
	}
	return nil
}

func (w *wireRecord) change() (domain.Change, bool) {
	id := strings.TrimSpace(string(w.InnerID))
	if id == "" {
		return domain.Change{}, false
	}
	payload := w.Data
	if payload == nil {
		payload = w.raw
		delete(payload, "change_type")
	}
	return domain.Change{
		Type:            domain.ParseChangeType(w.ChangeType),
		ExternalID:      id,
		Payload:         payload,
		SourceCreatedAt: parseCreatedAt(w.CreatedAt),
	}, true
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseCreatedAt returns the zero time for missing or unparseable values.
func parseCreatedAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flexInt decodes a JSON number, numeric string or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexString decodes a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
