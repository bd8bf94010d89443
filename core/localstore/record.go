package localstore

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// IDField is the record field holding its identifier.
const IDField = "id"

// Record is a free-form JSON object carrying a string identifier under IDField.
type Record map[string]interface{}

// ID returns the record identifier, or "" if it has none.
func (r Record) ID() string {
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Merge returns a copy of r with the fields of partial laid over it (shallow).
func (r Record) Merge(partial Record) Record {
	merged := r.Clone()
	if merged == nil {
		merged = make(Record, len(partial))
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}

// ToRecord converts any JSON-encodable object into a Record.
func ToRecord(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	var rec Record
	if err = json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "decoding record")
	}
	return rec, nil
}

// FromRecord decodes rec into out.
func FromRecord(rec Record, out interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	return errors.Wrap(json.Unmarshal(data, out), "decoding record")
}
