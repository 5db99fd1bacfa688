package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Change is one row change pushed by Supabase realtime.
type Change struct {
	Type      EventType
	Schema    string
	Table     string
	Record    json.RawMessage
	OldRecord json.RawMessage
}

// Decode unmarshals the new row (or, for deletes, the old row) into v.
func (c Change) Decode(v any) error {
	raw := c.Record
	if c.Type == Delete || len(raw) == 0 || string(raw) == "{}" {
		raw = c.OldRecord
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s %s: no row data", c.Type, c.Table)
	}
	return json.Unmarshal(raw, v)
}

// OldID returns the primary key of the old row, as sent on deletes.
func (c Change) OldID() gjson.Result {
	return gjson.GetBytes(c.OldRecord, "id")
}

// parseChange extracts a Change from a Phoenix frame. Both the current
// "postgres_changes" shape (payload.data) and the legacy per-table shape
// (payload) are accepted. ok is false for frames that are not row changes.
func parseChange(frame []byte) (Change, bool) {
	payload := gjson.GetBytes(frame, "payload")
	if data := payload.Get("data"); data.Exists() {
		payload = data
	}

	typ := EventType(payload.Get("type").String())
	switch typ {
	case Insert, Update, Delete:
	default:
		return Change{}, false
	}

	ch := Change{
		Type:   typ,
		Schema: payload.Get("schema").String(),
		Table:  payload.Get("table").String(),
	}
	if r := payload.Get("record"); r.Exists() {
		ch.Record = json.RawMessage(r.Raw)
	}
	if r := payload.Get("old_record"); r.Exists() {
		ch.OldRecord = json.RawMessage(r.Raw)
	}
	if ch.Table == "" {
		return Change{}, false
	}
	return ch, true
}
