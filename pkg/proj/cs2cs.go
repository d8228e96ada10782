package proj

import (
	"fmt"
	"strings"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// recursionMarker keeps helpers from synthesizing helpers of their own.
const recursionMarker = "break_cs2cs_recursion"

// cs2csSetup builds the helper operators that give classic datum, grid and
// axis parameters their meaning on a leaf operator.
func (p *PJ) cs2csSetup() error {
	params := p.params

	if axis, ok := params.String("axis"); ok && axis != "enu" {
		h, err := p.helper("proj=axisswap axis=" + axis)
		if err != nil {
			return err
		}
		p.axisswap = h
	}

	if g, ok := params.String("geoidgrids"); ok && strings.TrimSpace(g) != "" && !params.Exists("disable_grid_presence_check") {
		h, err := p.helper("proj=vgridshift grids=" + g)
		if err != nil {
			return err
		}
		p.vgridshift = h
	}

	if g, ok := params.String("nadgrids"); ok && strings.TrimSpace(g) != "" {
		h, err := p.helper("proj=hgridshift grids=" + g)
		if err != nil {
			return err
		}
		p.hgridshift = h
	}

	doCart := false
	if raw, ok := params.String("towgs84"); ok && p.hgridshift == nil {
		t, _, err := model.ParseToWGS84(params)
		if err != nil {
			return err
		}
		if t.IsNull() {
			doCart = !p.ellipsoid.IsWGS84()
		} else {
			h, err := p.helper("proj=helmert exact towgs84=" + raw + " convention=position_vector")
			if err != nil {
				return err
			}
			p.helmert = h
		}
	}

	if p.geocentric || p.helmert != nil || doCart {
		h, err := p.helper(fmt.Sprintf("proj=cart a=%.20g es=%.20g", p.ellipsoid.A, p.ellipsoid.Es))
		if err != nil {
			return err
		}
		p.cart = h
		if !p.geocentric {
			w, err := p.helper("proj=cart ellps=WGS84")
			if err != nil {
				return err
			}
			p.cartWGS84 = w
		}
	}
	return nil
}

func (p *PJ) helper(def string) (*PJ, error) {
	h, err := createTokens(p.ctx, strings.Fields(recursionMarker+" "+def), p.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: helper %q: %w", p.name, def, err)
	}
	h.skipPrepFin = true
	return h, nil
}
