package wall

import (
	"fmt"
	"strconv"

	"github.com/ayusman/cragtrack/internal/pose"
)

// Curve sampling density used when flattening path data into vertices.
const (
	CubicSamples     = 20
	QuadraticSamples = 15
)

// PathVertices flattens SVG path data into the vertex list used for the
// reference point. Curves are sampled, arcs contribute only their end point
// and Z closes back to the start of the current subpath.
func PathVertices(d string) ([]pose.Point2D, error) {
	s := &pathScanner{src: d}
	var (
		pts        []pose.Point2D
		cur, start pose.Point2D
		// last control points, for S and T reflection
		lastCubic, lastQuad pose.Point2D
		prev                byte
	)

	for {
		s.skipSeparators()
		if s.done() {
			return pts, nil
		}
		cmd, ok := s.command()
		if !ok {
			return nil, s.errorf("expected command")
		}
		rel := cmd >= 'a'
		upper := cmd &^ 0x20

		offset := func(p pose.Point2D) pose.Point2D {
			if rel {
				return pose.Point2D{X: p.X + cur.X, Y: p.Y + cur.Y}
			}
			return p
		}

		if upper == 'Z' {
			cur = start
			pts = append(pts, start)
			prev = upper
			continue
		}

		// Each command takes one or more parameter groups until the next
		// command letter.
		first := true
		for first || s.moreNumbers() {
			switch upper {
			case 'M':
				p, err := s.pair()
				if err != nil {
					return nil, err
				}
				cur = offset(p)
				if first {
					start = cur
				}
				pts = append(pts, cur)
			case 'L':
				p, err := s.pair()
				if err != nil {
					return nil, err
				}
				cur = offset(p)
				pts = append(pts, cur)
			case 'H':
				x, err := s.number()
				if err != nil {
					return nil, err
				}
				if rel {
					x += cur.X
				}
				cur.X = x
				pts = append(pts, cur)
			case 'V':
				y, err := s.number()
				if err != nil {
					return nil, err
				}
				if rel {
					y += cur.Y
				}
				cur.Y = y
				pts = append(pts, cur)
			case 'C', 'S':
				var c1 pose.Point2D
				if upper == 'S' {
					c1 = cur
					if prev == 'C' || prev == 'S' {
						c1 = reflect(lastCubic, cur)
					}
				} else {
					p, err := s.pair()
					if err != nil {
						return nil, err
					}
					c1 = offset(p)
				}
				c2p, err := s.pair()
				if err != nil {
					return nil, err
				}
				endp, err := s.pair()
				if err != nil {
					return nil, err
				}
				c2, end := offset(c2p), offset(endp)
				pts = append(pts, sampleCubic(cur, c1, c2, end, CubicSamples)...)
				lastCubic = c2
				cur = end
			case 'Q', 'T':
				var c pose.Point2D
				if upper == 'T' {
					c = cur
					if prev == 'Q' || prev == 'T' {
						c = reflect(lastQuad, cur)
					}
				} else {
					p, err := s.pair()
					if err != nil {
						return nil, err
					}
					c = offset(p)
				}
				endp, err := s.pair()
				if err != nil {
					return nil, err
				}
				end := offset(endp)
				pts = append(pts, sampleQuadratic(cur, c, end, QuadraticSamples)...)
				lastQuad = c
				cur = end
			case 'A':
				// rx ry rotation large-arc sweep x y
				for range 3 {
					if _, err := s.number(); err != nil {
						return nil, err
					}
				}
				for range 2 {
					if err := s.flag(); err != nil {
						return nil, err
					}
				}
				endp, err := s.pair()
				if err != nil {
					return nil, err
				}
				cur = offset(endp)
				pts = append(pts, cur)
			default:
				return nil, s.errorf("unsupported command %q", cmd)
			}
			prev = upper
			first = false
			// Coordinate pairs after a moveto are implicit linetos.
			if upper == 'M' {
				upper = 'L'
			}
		}
	}
}

// Centroid returns the arithmetic mean of the vertices.
func Centroid(pts []pose.Point2D) (pose.Point2D, bool) {
	if len(pts) == 0 {
		return pose.Point2D{}, false
	}
	var c pose.Point2D
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return pose.Point2D{X: c.X / n, Y: c.Y / n}, true
}

func reflect(ctrl, about pose.Point2D) pose.Point2D {
	return pose.Point2D{X: 2*about.X - ctrl.X, Y: 2*about.Y - ctrl.Y}
}

// sampleCubic returns n points along the curve for t in (0, 1].
func sampleCubic(p0, p1, p2, p3 pose.Point2D, n int) []pose.Point2D {
	out := make([]pose.Point2D, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		u := 1 - t
		a, b, c, d := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
		out = append(out, pose.Point2D{
			X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
		})
	}
	return out
}

// sampleQuadratic returns n points along the curve for t in (0, 1].
func sampleQuadratic(p0, p1, p2 pose.Point2D, n int) []pose.Point2D {
	out := make([]pose.Point2D, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		u := 1 - t
		a, b, c := u*u, 2*u*t, t*t
		out = append(out, pose.Point2D{
			X: a*p0.X + b*p1.X + c*p2.X,
			Y: a*p0.Y + b*p1.Y + c*p2.Y,
		})
	}
	return out
}

type pathScanner struct {
	src string
	pos int
}

func (s *pathScanner) done() bool { return s.pos >= len(s.src) }

func (s *pathScanner) errorf(format string, args ...any) error {
	return fmt.Errorf("path data at offset %d: %s", s.pos, fmt.Sprintf(format, args...))
}

func (s *pathScanner) skipSeparators() {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ', '\t', '\n', '\r', '\f', ',':
			s.pos++
		default:
			return
		}
	}
}

func (s *pathScanner) command() (byte, bool) {
	c := s.src[s.pos]
	switch c &^ 0x20 {
	case 'M', 'L', 'H', 'V', 'C', 'S', 'Q', 'T', 'A', 'Z':
		s.pos++
		return c, true
	}
	return 0, false
}

// moreNumbers reports whether another parameter follows before the next command.
func (s *pathScanner) moreNumbers() bool {
	s.skipSeparators()
	if s.done() {
		return false
	}
	c := s.src[s.pos]
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9')
}

func (s *pathScanner) pair() (pose.Point2D, error) {
	x, err := s.number()
	if err != nil {
		return pose.Point2D{}, err
	}
	y, err := s.number()
	if err != nil {
		return pose.Point2D{}, err
	}
	return pose.Point2D{X: x, Y: y}, nil
}

// number scans one SVG number. Compact forms such as "1.5.5" (two numbers)
// and "1-2" are split the way renderers split them.
func (s *pathScanner) number() (float64, error) {
	s.skipSeparators()
	begin := s.pos
	i := s.pos
	if i < len(s.src) && (s.src[i] == '+' || s.src[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s.src) && isDigit(s.src[i]) {
		i++
		digits++
	}
	if i < len(s.src) && s.src[i] == '.' {
		i++
		for i < len(s.src) && isDigit(s.src[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, s.errorf("expected number")
	}
	if i < len(s.src) && (s.src[i] == 'e' || s.src[i] == 'E') {
		j := i + 1
		if j < len(s.src) && (s.src[j] == '+' || s.src[j] == '-') {
			j++
		}
		if j < len(s.src) && isDigit(s.src[j]) {
			for j < len(s.src) && isDigit(s.src[j]) {
				j++
			}
			i = j
		}
	}
	v, err := strconv.ParseFloat(s.src[begin:i], 64)
	if err != nil {
		return 0, s.errorf("bad number %q", s.src[begin:i])
	}
	s.pos = i
	return v, nil
}

// flag scans a single arc flag digit, which may be packed without separators.
func (s *pathScanner) flag() error {
	s.skipSeparators()
	if s.done() || (s.src[s.pos] != '0' && s.src[s.pos] != '1') {
		return s.errorf("expected arc flag")
	}
	s.pos++
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
