package transr

import (
	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kgscore/pkg/kge"
	"github.com/cnclabs/kgscore/pkg/tensor"
)

// score runs the TransR template for any slot binding:
// project through M_r, clip to norm 1, score -||h_r + r - t_r||^2
func (m *TransR) score(q kge.Query) (*mat.Dense, error) {
	if m == nil || m.entities == nil || m.relations == nil || m.projections == nil {
		return nil, kge.ErrNotInitialized
	}

	// shape: (b, dr)
	r, err := m.relations.Lookup(q.Relations)
	if err != nil {
		return nil, err
	}
	// shape: (b, de*dr)
	mr, err := m.projections.Lookup(q.Relations)
	if err != nil {
		return nil, err
	}
	// shape: (b, dr) or nil when ranging over all entities
	hBot, err := m.projectBound(q.Heads, mr)
	if err != nil {
		return nil, err
	}
	tBot, err := m.projectBound(q.Tails, mr)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(q.Len(), q.Columns(m.numEntities), nil)
	err = kge.ForEachRow(q.Len(), m.workers, func(i int) error {
		rel := r.RawRowView(i)
		row := out.RawRowView(i)
		residual := make([]float64, m.relationDim)

		switch q.Mode {
		case kge.ModeHRT:
			row[0] = -squaredResidual(residual, hBot.RawRowView(i), rel, tBot.RawRowView(i))
		case kge.ModeT:
			h := hBot.RawRowView(i)
			all := m.projectAll(q.Relations[i], m.projection(mr, i))
			for k := range row {
				row[k] = -squaredResidual(residual, h, rel, all.RawRowView(k))
			}
		case kge.ModeH:
			t := tBot.RawRowView(i)
			all := m.projectAll(q.Relations[i], m.projection(mr, i))
			for k := range row {
				row[k] = -squaredResidual(residual, all.RawRowView(k), rel, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.reg != nil {
		if err := m.regularize(hBot, r, tBot); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// projection views the i-th flattened row of mr as a de x dr matrix
func (m *TransR) projection(mr *mat.Dense, i int) *mat.Dense {
	return mat.NewDense(m.entityDim, m.relationDim, mr.RawRowView(i))
}

// projectBound projects one looked-up entity per row with that row's matrix
func (m *TransR) projectBound(ids []int64, mr *mat.Dense) (*mat.Dense, error) {
	if ids == nil {
		return nil, nil
	}
	emb, err := m.entities.Lookup(ids)
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(len(ids), m.relationDim, nil)
	for i := range ids {
		dst := mat.NewVecDense(m.relationDim, out.RawRowView(i))
		dst.MulVec(m.projection(mr, i).T(), mat.NewVecDense(m.entityDim, emb.RawRowView(i)))
		tensor.Renorm(dst.RawVector().Data, maxNorm)
	}
	return out, nil
}

// projectAll projects the whole entity table through proj, the matrix of relation
func (m *TransR) projectAll(relation int64, proj *mat.Dense) *mat.Dense {
	var key projectionKey
	if m.cache != nil {
		key = projectionKey{
			relation:          relation,
			entityVersion:     m.entities.Version(),
			projectionVersion: m.projections.Version(),
		}
		if p, ok := m.cache.Get(key); ok {
			return p
		}
	}

	p := mat.NewDense(m.numEntities, m.relationDim, nil)
	p.Mul(m.entities.All(), proj)
	tensor.RenormRows(p, maxNorm)

	if m.cache != nil {
		m.cache.Add(key, p)
	}
	return p
}

// regularize reports (h_r, r, t_r); a side ranging over all entities is
// reported as the raw entity table
func (m *TransR) regularize(hBot, r, tBot *mat.Dense) error {
	operand := func(x *mat.Dense) (*tensor.Stack, error) {
		if x == nil {
			return tensor.Broadcast(m.entities.All()), nil
		}
		_, c := x.Dims()
		return tensor.StackFromDense(x, 1, c)
	}

	h, err := operand(hBot)
	if err != nil {
		return err
	}
	rel, err := operand(r)
	if err != nil {
		return err
	}
	t, err := operand(tBot)
	if err != nil {
		return err
	}
	m.reg.Accumulate(h, rel, t)
	return nil
}

// squaredResidual returns ||h + r - t||^2 using buf as scratch space
func squaredResidual(buf, h, r, t []float64) float64 {
	copy(buf, h)
	vek.Add_Inplace(buf, r)
	vek.Sub_Inplace(buf, t)
	return vek.Dot(buf, buf)
}
