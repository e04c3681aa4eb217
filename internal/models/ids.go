package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExtractID resolves a user reference to its id. References arrive as raw
// numbers, numeric strings, or populated objects carrying "id" or "_id".
func ExtractID(v any) (int, bool) {
	switch id := v.(type) {
	case int:
		return id, id > 0
	case int64:
		return int(id), id > 0
	case float64:
		if id != float64(int(id)) {
			return 0, false
		}
		return int(id), id > 0
	case json.Number:
		n, err := strconv.Atoi(id.String())
		return n, err == nil && n > 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(id))
		return n, err == nil && n > 0
	case map[string]any:
		if inner, ok := id["id"]; ok {
			return ExtractID(inner)
		}
		if inner, ok := id["_id"]; ok {
			return ExtractID(inner)
		}
	case User:
		return id.ID, id.ID > 0
	case *User:
		if id != nil {
			return id.ID, id.ID > 0
		}
	}
	return 0, false
}

// IDSet is a sorted, duplicate-free list of user ids.
type IDSet []int

func NewIDSet(ids ...int) IDSet {
	var s IDSet
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

func (s IDSet) Contains(id int) bool {
	i := sort.SearchInts(s, id)
	return i < len(s) && s[i] == id
}

// Add returns the set with id included.
func (s IDSet) Add(id int) IDSet {
	i := sort.SearchInts(s, id)
	if i < len(s) && s[i] == id {
		return s
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int(s))
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out := make(IDSet, 0, len(raw))
	for _, v := range raw {
		id, ok := ExtractID(v)
		if !ok {
			return fmt.Errorf("invalid user reference %v", v)
		}
		out = out.Add(id)
	}
	*s = out
	return nil
}
