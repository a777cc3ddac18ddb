package wall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Route restricts the working hold set and assigns each listed hold a type.
type Route map[string]HoldType

// RouteHold is one hold entry in route data.
type RouteHold struct {
	ID   string   `json:"id"`
	Type HoldType `json:"type,omitempty"`
}

// UnmarshalJSON accepts numeric as well as string hold ids.
func (h *RouteHold) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"id"`
		Type HoldType        `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.Type = raw.Type

	if len(raw.ID) == 0 || string(raw.ID) == "null" {
		h.ID = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		h.ID = s
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw.ID))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("hold id must be a string or number: %s", raw.ID)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		h.ID = strconv.FormatInt(i, 10)
	} else {
		h.ID = n.String()
	}
	return nil
}

// ParseRoute decodes route data. Three shapes are accepted:
//
//	{"problem": {"holds": [{"id": "17", "type": "start"}, ...]}}
//	{"holds": [...]}
//	[...]
//
// Holds without a type are normal; entries without an id are ignored.
// A route listing no holds decodes to nil, which applies no filter.
func ParseRoute(data []byte) (Route, error) {
	holds, err := routeHolds(bytes.TrimSpace(data))
	if err != nil {
		return nil, &ParseError{What: "route", Err: err}
	}
	return NewRoute(holds)
}

// NewRoute builds a Route from hold entries.
func NewRoute(holds []RouteHold) (Route, error) {
	if len(holds) == 0 {
		return nil, nil
	}
	r := make(Route, len(holds))
	for _, h := range holds {
		if h.ID == "" {
			continue
		}
		typ := h.Type
		if typ == "" {
			typ = TypeNormal
		}
		if !typ.Valid() {
			return nil, &ParseError{What: "route", ID: h.ID, Err: fmt.Errorf("unknown hold type %q", typ)}
		}
		r[h.ID] = typ
	}
	if len(r) == 0 {
		return nil, nil
	}
	return r, nil
}

// Holds returns the route as hold entries, sorted by id.
func (r Route) Holds() []RouteHold {
	out := make([]RouteHold, 0, len(r))
	for id, typ := range r {
		out = append(out, RouteHold{ID: id, Type: typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func routeHolds(data []byte) ([]RouteHold, error) {
	if len(data) == 0 {
		return nil, errors.New("empty route data")
	}
	if data[0] == '[' {
		var holds []RouteHold
		if err := json.Unmarshal(data, &holds); err != nil {
			return nil, err
		}
		return holds, nil
	}

	var doc struct {
		Problem *struct {
			Holds []RouteHold `json:"holds"`
		} `json:"problem"`
		Holds []RouteHold `json:"holds"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Problem != nil {
		return doc.Problem.Holds, nil
	}
	return doc.Holds, nil
}
