package proj

import (
	"fmt"

	"github.com/mohammed-shakir/projpipe/internal/core/model"
)

// initPushPop sets up the stack operators. v_1..v_4 select the components
// saved on, or restored from, the stacks of the enclosing pipeline.
func (p *PJ) initPushPop() {
	p.skipPrepFin = true
	for i := range p.flags {
		p.flags[i] = p.params.Exists(fmt.Sprintf("v_%d", i+1))
	}
	p.left, p.right = model.UnitWhatever, model.UnitWhatever
	if p.name == "push" {
		p.kind = kindPush
		p.descr = "Save coordinate value on pipeline stack"
		p.fwd, p.inv = p.push, p.pop
		return
	}
	p.kind = kindPop
	p.descr = "Retrieve coordinate value from pipeline stack"
	p.fwd, p.inv = p.pop, p.push
}

func (p *PJ) push(c model.Coord) (model.Coord, error) {
	if p.parent == nil {
		return c, nil
	}
	st := &p.parent.stacks
	for i, on := range p.flags {
		if on {
			st[i] = append(st[i], c[i])
		}
	}
	return c, nil
}

// pop restores the selected components; an empty stack leaves the
// component untouched.
func (p *PJ) pop(c model.Coord) (model.Coord, error) {
	if p.parent == nil {
		return c, nil
	}
	st := &p.parent.stacks
	for i, on := range p.flags {
		if !on || len(st[i]) == 0 {
			continue
		}
		n := len(st[i]) - 1
		c[i] = st[i][n]
		st[i] = st[i][:n]
	}
	return c, nil
}
