// Package wall parses wall diagrams into the hold regions touches are
// measured against.
package wall

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ayusman/cragtrack/internal/pose"
)

// HoldType classifies a hold within a route.
type HoldType string

const (
	TypeStart  HoldType = "start"
	TypeNormal HoldType = "normal"
	TypeFinish HoldType = "finish"
)

// Valid reports whether t is a known hold type.
func (t HoldType) Valid() bool {
	switch t {
	case TypeStart, TypeNormal, TypeFinish:
		return true
	}
	return false
}

// TypeFromID derives a hold type from the id naming convention.
func TypeFromID(id string) HoldType {
	switch {
	case strings.HasPrefix(id, "start_"):
		return TypeStart
	case strings.HasPrefix(id, "finish_"):
		return TypeFinish
	default:
		return TypeNormal
	}
}

// HoldRegion is a named hold on the wall diagram.
type HoldRegion struct {
	ID        string
	Reference pose.Point2D
	Type      HoldType
	// Shape is the raw path data the region was parsed from.
	Shape string
	// Order is the position of the hold in document order.
	Order int
}

// ParseError reports a wall diagram, path or route that could not be parsed.
type ParseError struct {
	What string
	ID   string
	Err  error
}

func (e *ParseError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("parse %s %q: %v", e.What, e.ID, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load parses every <path> element carrying an id into a HoldRegion.
// When route is non-nil only holds listed in it are kept and their type comes
// from the route. A diagram without any hold paths yields an empty map.
func Load(diagram []byte, route Route) (map[string]HoldRegion, error) {
	dec := xml.NewDecoder(bytes.NewReader(diagram))
	dec.Strict = true

	holds := make(map[string]HoldRegion)
	sawRoot := false
	order := 0

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{What: "wall diagram", Err: err}
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !sawRoot {
			if se.Name.Local != "svg" {
				return nil, &ParseError{What: "wall diagram", Err: fmt.Errorf("root element is <%s>, want <svg>", se.Name.Local)}
			}
			sawRoot = true
			continue
		}
		if se.Name.Local != "path" {
			continue
		}

		id, d := attr(se, "id"), attr(se, "d")
		if id == "" {
			continue
		}

		typ := TypeFromID(id)
		if route != nil {
			rt, listed := route[id]
			if !listed {
				continue
			}
			typ = rt
		}

		pts, err := PathVertices(d)
		if err != nil {
			return nil, &ParseError{What: "hold path", ID: id, Err: err}
		}
		ref, ok := Centroid(pts)
		if !ok {
			// Nothing to measure against.
			continue
		}

		holds[id] = HoldRegion{
			ID:        id,
			Reference: ref,
			Type:      typ,
			Shape:     d,
			Order:     order,
		}
		order++
	}

	if !sawRoot {
		return nil, &ParseError{What: "wall diagram", Err: errors.New("no <svg> element")}
	}
	return holds, nil
}

// Sorted returns the regions in document order.
func Sorted(holds map[string]HoldRegion) []HoldRegion {
	out := make([]HoldRegion, 0, len(holds))
	for _, h := range holds {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}
