package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Collection maps patient id to Patient and keeps insertion order: the key
// order of the stored document on load, new ids appended at the end. It
// marshals as a JSON object in that order.
type Collection struct {
	order []string
	byID  map[string]*Patient
}

func NewCollection() *Collection {
	return &Collection{byID: make(map[string]*Patient)}
}

func (c *Collection) Len() int {
	return len(c.order)
}

func (c *Collection) Get(id string) (*Patient, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Put stores p under p.ID. An existing id keeps its position.
func (c *Collection) Put(p *Patient) {
	if _, ok := c.byID[p.ID]; !ok {
		c.order = append(c.order, p.ID)
	}
	c.byID[p.ID] = p
}

func (c *Collection) Delete(id string) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Values returns the patients in collection order. The slice is fresh; the
// pointers are shared with the collection.
func (c *Collection) Values() []*Patient {
	out := make([]*Patient, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Derive recomputes the derived fields of every record.
func (c *Collection) Derive() {
	for _, p := range c.byID {
		p.Derive()
	}
}

func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.byID[id])
		if err != nil {
			return nil, fmt.Errorf("marshal patient %q: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of id -> patient, keeping key order.
// The key is authoritative for the record id.
func (c *Collection) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("patient collection must be a JSON object")
	}

	c.order = nil
	c.byID = make(map[string]*Patient)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		var p Patient
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("decode patient %q: %w", id, err)
		}
		p.ID = id
		c.Put(&p)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
