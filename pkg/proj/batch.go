package proj

import (
	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// TransArray transforms coords in place. It returns 0 when every point
// succeeded, the shared code when all failures agree and the generic
// transformation code when they differ. The return value is also left in
// the error cell.
func (p *PJ) TransArray(dir model.Direction, coords []model.Coord) model.Errno {
	var (
		ret  model.Errno
		set  bool
		same = true
	)
	for i := range coords {
		p.ctx.SetErrno(0)
		coords[i] = p.Trans(dir, coords[i])
		e := p.ctx.errno
		if e == 0 {
			continue
		}
		switch {
		case !set:
			ret, set = e, true
		case same && ret != e:
			same = false
			ret = model.ErrCoordTransfm
		}
	}
	p.ctx.SetErrno(ret)
	return ret
}

// Strided is one component column for TransGeneric: Len values taken every
// Stride elements of Data. A zero Len reads as the default of the column
// (0, or HugeVal for time); Len 1 broadcasts its single value.
type Strided struct {
	Data   []float64
	Stride int
	Len    int
}

// Column is a convenience for a dense slice.
func Column(v []float64) Strided { return Strided{Data: v, Stride: 1, Len: len(v)} }

func (s Strided) norm() Strided {
	if s.Data == nil {
		s.Len = 0
	}
	if s.Stride <= 0 {
		s.Stride = 1
	}
	if s.Len > 0 {
		if limit := (len(s.Data)-1)/s.Stride + 1; s.Len > limit {
			s.Len = limit
		}
	}
	return s
}

func (s Strided) at(i int, def float64) float64 {
	switch s.Len {
	case 0:
		return def
	case 1:
		return s.Data[0]
	}
	return s.Data[i*s.Stride]
}

// TransGeneric transforms up to four strided columns in place and returns
// the number of points transformed: the length of the shortest column
// longer than one, or 1 when all columns are constants.
func (p *PJ) TransGeneric(dir model.Direction, x, y, z, t Strided) int {
	if p == nil {
		return 0
	}
	cols := [4]Strided{x.norm(), y.norm(), z.norm(), t.norm()}
	total := 0
	for _, c := range cols {
		total += c.Len
	}
	if total == 0 {
		return 0
	}

	n := 0
	for _, c := range cols {
		if c.Len > 1 && (n == 0 || c.Len < n) {
			n = c.Len
		}
	}
	if n == 0 {
		n = 1
	}

	switch dir {
	case model.Fwd, model.Inv:
	case model.Ident:
		return n
	default:
		p.ctx.SetErrno(model.ErrOtherAPIMisuse)
		return 0
	}

	defaults := [4]float64{0, 0, 0, model.HugeVal}
	var out model.Coord
	for i := 0; i < n; i++ {
		var in model.Coord
		for k, c := range cols {
			in[k] = c.at(i, defaults[k])
		}
		out = p.Trans(dir, in)
		for k, c := range cols {
			if c.Len > 1 {
				c.Data[i*c.Stride] = out[k]
			}
		}
	}
	for k, c := range cols {
		if c.Len == 1 {
			c.Data[0] = out[k]
		}
	}
	return n
}
