package model

import (
	"math"
	"strconv"
	"strings"
)

// Param is one key[=value] token of a definition.
type Param struct {
	Key      string
	Value    string
	HasValue bool
}

func (p Param) String() string {
	if !p.HasValue {
		return p.Key
	}
	return p.Key + "=" + p.Value
}

func ParseParam(token string) Param {
	k, v, ok := strings.Cut(token, "=")
	return Param{Key: k, Value: v, HasValue: ok}
}

// Params is an ordered parameter list. Lookups return the first occurrence,
// which is why expansions are appended rather than inserted.
type Params struct {
	list []Param
}

func NewParams(tokens []string) *Params {
	p := &Params{list: make([]Param, 0, len(tokens))}
	for _, t := range tokens {
		p.list = append(p.list, ParseParam(t))
	}
	return p
}

func (p *Params) Len() int { return len(p.list) }

func (p *Params) List() []Param {
	out := make([]Param, len(p.list))
	copy(out, p.list)
	return out
}

func (p *Params) Tokens() []string {
	out := make([]string, len(p.list))
	for i, prm := range p.list {
		out[i] = prm.String()
	}
	return out
}

func (p *Params) Clone() *Params {
	return &Params{list: p.List()}
}

func (p *Params) Append(tokens ...string) {
	for _, t := range tokens {
		p.list = append(p.list, ParseParam(t))
	}
}

func (p *Params) Get(key string) (Param, bool) {
	for _, prm := range p.list {
		if prm.Key == key {
			return prm, true
		}
	}
	return Param{}, false
}

func (p *Params) Exists(key string) bool {
	_, ok := p.Get(key)
	return ok
}

func (p *Params) Count(key string) int {
	n := 0
	for _, prm := range p.list {
		if prm.Key == key {
			n++
		}
	}
	return n
}

func (p *Params) String(key string) (string, bool) {
	prm, ok := p.Get(key)
	if !ok || !prm.HasValue {
		return "", false
	}
	return prm.Value, true
}

func (p *Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// Float returns the value of key, whether it was present and a parse error.
func (p *Params) Float(key string) (float64, bool, error) {
	s, ok := p.String(key)
	if !ok {
		return 0, p.Exists(key), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, true, Errorf(ErrInvalidOpIllegalArgValue, "invalid value for %s: %q", key, s)
	}
	return v, true, nil
}

func (p *Params) FloatOr(key string, def float64) (float64, error) {
	v, ok, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

func (p *Params) Int(key string) (int, bool, error) {
	s, ok := p.String(key)
	if !ok {
		return 0, p.Exists(key), nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, true, Errorf(ErrInvalidOpIllegalArgValue, "invalid integer for %s: %q", key, s)
	}
	return v, true, nil
}

// Bool follows the flag convention: a bare key is true, T/F spell the value.
func (p *Params) Bool(key string) (bool, error) {
	prm, ok := p.Get(key)
	if !ok {
		return false, nil
	}
	if !prm.HasValue || prm.Value == "" {
		return true, nil
	}
	switch prm.Value[0] {
	case 'T', 't':
		return true, nil
	case 'F', 'f':
		return false, nil
	}
	return false, Errorf(ErrInvalidOpIllegalArgValue, "invalid boolean for %s: %q", key, prm.Value)
}

// Angle returns key parsed as an angle, in radians.
func (p *Params) Angle(key string) (float64, bool, error) {
	s, ok := p.String(key)
	if !ok {
		return 0, false, nil
	}
	v, err := ParseAngle(s)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

// Floats parses a comma separated list of numbers such as towgs84=.
func (p *Params) Floats(key string) ([]float64, bool, error) {
	s, ok := p.String(key)
	if !ok {
		return nil, false, nil
	}
	var out []float64
	for part := range strings.SplitSeq(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, true, Errorf(ErrInvalidOpIllegalArgValue, "invalid list value for %s: %q", key, s)
		}
		out = append(out, v)
	}
	return out, true, nil
}

// ParseAngle reads decimal degrees, DMS notation (12d30'15"W) or radians
// with an "r" suffix.
func ParseAngle(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, Errorf(ErrInvalidOpIllegalArgValue, "empty angle")
	}
	if strings.HasSuffix(s, "r") || strings.HasSuffix(s, "R") {
		v, err := strconv.ParseFloat(s[:len(s)-1], 64)
		if err != nil {
			return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid angle %q", s)
		}
		return v, nil
	}

	sign := 1.0
	switch s[len(s)-1] {
	case 'W', 'w', 'S', 's':
		sign = -1
		s = s[:len(s)-1]
	case 'E', 'e', 'N', 'n':
		s = s[:len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		sign = -sign
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	var deg float64
	divisors := []float64{1, 60, 3600}
	rest := s
	for i, sep := range []string{"d", "'", "\""} {
		if rest == "" {
			break
		}
		part, tail, found := strings.Cut(rest, sep)
		if !found {
			if i == 0 && strings.ContainsAny(rest, "'\"") {
				return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid angle %q", s)
			}
			part, tail = rest, ""
		}
		if part != "" {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid angle %q", s)
			}
			deg += v / divisors[i]
		}
		rest = tail
	}
	if rest != "" {
		return 0, Errorf(ErrInvalidOpIllegalArgValue, "invalid angle %q", s)
	}
	return sign * deg * DegToRad, nil
}

const (
	DegToRad = math.Pi / 180
	RadToDeg = 180 / math.Pi
)
