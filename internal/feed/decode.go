package feed

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"eventboard/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeJSON accepts either the {"data": [...]} envelope or a bare array
// of records. Only the outer shape is checked: an element that is not an
// object becomes an empty record and non-string fields are stringified.
func DecodeJSON(body []byte) ([]model.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty events body")
	}

	var items []jsoniter.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode events array: %w", err)
		}

	case '{':
		var envelope struct {
			Data *[]jsoniter.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode events payload: %w", err)
		}
		if envelope.Data == nil {
			return nil, errors.New(`events payload has no "data" array`)
		}
		items = *envelope.Data

	default:
		return nil, fmt.Errorf("unexpected events body starting with %q", trimmed[0])
	}

	records := make([]model.Record, 0, len(items))
	for _, raw := range items {
		records = append(records, decodeRecord(raw))
	}
	return records, nil
}

// decodeRecord never fails; anything that is not an object yields an empty record.
func decodeRecord(raw jsoniter.RawMessage) model.Record {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return model.Record{}
	}
	return model.Record{
		Title:       stringField(fields, "title"),
		Date:        stringField(fields, "date"),
		Time:        stringField(fields, "time"),
		Description: stringField(fields, "description"),
	}
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
