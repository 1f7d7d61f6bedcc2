package forecaster

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/seasonal/forecastd/pkg/models"
)

// Fit trains a model on history with the resolved parameters. History need not be
// sorted. Parameter and data problems are returned as errors and never panic.
func Fit(history []Point, p models.ResolvedParams) (*Model, error) {
	if !p.SeasonalityMode.IsValid() {
		return nil, errors.Errorf("invalid seasonality_mode %q: must be additive or multiplicative", p.SeasonalityMode)
	}

	pts := make([]Point, len(history))
	copy(pts, history)
	for i, pt := range pts {
		if math.IsNaN(pt.Y) || math.IsInf(pt.Y, 0) {
			return nil, errors.Errorf("non-finite value at row %d", i+1)
		}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].T.Before(pts[j].T) })

	n := len(pts)
	if n < 2 || !pts[n-1].T.After(pts[0].T) {
		return nil, errors.New("history needs at least two distinct timestamps")
	}

	m := &Model{
		Params:  p,
		Mode:    p.SeasonalityMode,
		Start:   pts[0].T,
		End:     pts[n-1].T,
		History: pts,
	}

	spanDays := m.End.Sub(m.Start).Hours() / 24
	specs, err := seasonalitySpecs(p, spanDays)
	if err != nil {
		return nil, err
	}

	m.YScale = 0
	for _, pt := range pts {
		m.YScale = math.Max(m.YScale, math.Abs(pt.Y))
	}
	if m.YScale == 0 {
		m.YScale = 1
	}

	ts := make([]float64, n)
	ys := make([]float64, n)
	days := make([]float64, n)
	for i, pt := range pts {
		ts[i] = m.scaleTime(pt.T)
		ys[i] = pt.Y / m.YScale
		days[i] = epochDays(pt.T)
	}

	m.Changepoints = placeChangepoints(ts)
	trendX, trendPen := trendDesign(ts, m.Changepoints)
	seasX, seasPen := seasonalDesign(days, specs)

	var trendBeta, seasBeta []float64
	switch m.Mode {
	case models.SeasonalityModeAdditive:
		beta, err := ridge(hstack(trendX, seasX), ys, append(trendPen, seasPen...))
		if err != nil {
			return nil, err
		}
		_, tc := trendX.Dims()
		trendBeta, seasBeta = beta[:tc], beta[tc:]

	case models.SeasonalityModeMultiplicative:
		trendBeta, err = ridge(trendX, ys, trendPen)
		if err != nil {
			return nil, errors.Wrap(err, "trend")
		}
		seasBeta, err = fitMultiplicativeSeasonality(trendX, trendBeta, seasX, seasPen, ys)
		if err != nil {
			return nil, errors.Wrap(err, "seasonality")
		}
	}

	m.M, m.K = trendBeta[0], trendBeta[1]
	m.Deltas = append([]float64{}, trendBeta[2:]...)

	offset := 0
	for _, spec := range specs {
		width := 2 * spec.order
		m.Seasonalities = append(m.Seasonalities, Seasonality{
			Name:   spec.name,
			Period: spec.period,
			Order:  spec.order,
			Coef:   append([]float64{}, seasBeta[offset:offset+width]...),
		})
		offset += width
	}

	residuals := make([]float64, n)
	for i, pt := range pts {
		residuals[i] = pt.Y - m.yhat(pt.T)
	}
	m.Sigma = stat.StdDev(residuals, nil)
	if math.IsNaN(m.Sigma) {
		m.Sigma = 0
	}

	return m, nil
}

// placeChangepoints spreads up to MaxChangepoints over the first ChangepointRange of
// the history, at observed time points
func placeChangepoints(ts []float64) []float64 {
	histSize := int(math.Floor(float64(len(ts)) * ChangepointRange))
	count := MaxChangepoints
	if count+1 > histSize {
		count = histSize - 1
	}
	if count <= 0 {
		return nil
	}

	cps := make([]float64, 0, count)
	for i := 1; i <= count; i++ {
		idx := int(math.Round(float64(i) * float64(histSize-1) / float64(count)))
		cps = append(cps, ts[idx])
	}
	return cps
}

// trendDesign builds the [1, t, (t-s_j)+ ...] columns and their penalties
func trendDesign(ts, changepoints []float64) (*mat.Dense, []float64) {
	cols := 2 + len(changepoints)
	x := mat.NewDense(len(ts), cols, nil)
	for i, t := range ts {
		x.Set(i, 0, 1)
		x.Set(i, 1, t)
		for j, s := range changepoints {
			if t >= s {
				x.Set(i, 2+j, t-s)
			}
		}
	}

	pen := make([]float64, cols)
	pen[0], pen[1] = basePenalty, basePenalty
	for j := 2; j < cols; j++ {
		pen[j] = 1 / ChangepointPriorScale
	}
	return x, pen
}

// seasonalDesign builds the Fourier columns of every seasonality side by side
func seasonalDesign(days []float64, specs []seasonalitySpec) (*mat.Dense, []float64) {
	cols := 0
	for _, s := range specs {
		cols += 2 * s.order
	}
	if cols == 0 {
		return nil, nil
	}

	x := mat.NewDense(len(days), cols, nil)
	row := make([]float64, cols)
	for i, d := range days {
		offset := 0
		for _, s := range specs {
			fourier(row[offset:offset+2*s.order], d, s.period, s.order)
			offset += 2 * s.order
		}
		x.SetRow(i, row)
	}

	pen := make([]float64, cols)
	for j := range pen {
		pen[j] = 1 / SeasonalityPriorScale
	}
	return x, pen
}

// fitMultiplicativeSeasonality fits the seasonal columns to y/trend - 1
func fitMultiplicativeSeasonality(trendX *mat.Dense, trendBeta []float64, seasX *mat.Dense, pen, ys []float64) ([]float64, error) {
	if seasX == nil {
		return nil, nil
	}

	var g mat.VecDense
	g.MulVec(trendX, mat.NewVecDense(len(trendBeta), trendBeta))

	_, cols := seasX.Dims()
	var rows [][]float64
	var target []float64
	for i, y := range ys {
		gi := g.AtVec(i)
		if math.Abs(gi) < 1e-9 {
			continue
		}
		rows = append(rows, seasX.RawRowView(i))
		target = append(target, y/gi-1)
	}
	if len(rows) == 0 {
		return nil, errors.New("trend is zero over the whole history")
	}

	x := mat.NewDense(len(rows), cols, nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}
	return ridge(x, target, pen)
}

// ridge solves (XᵀX + diag(pen)) β = Xᵀy
func ridge(x *mat.Dense, y, pen []float64) ([]float64, error) {
	_, cols := x.Dims()

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < cols; j++ {
		xtx.Set(j, j, xtx.At(j, j)+pen[j])
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(len(y), y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, errors.Wrap(err, "solve normal equations")
		}
	}

	out := make([]float64, cols)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, errors.New("degenerate series: least squares solution is not finite")
		}
	}
	return out, nil
}

// hstack joins two matrices column-wise; b may be nil
func hstack(a, b *mat.Dense) *mat.Dense {
	if b == nil {
		return a
	}
	r, ca := a.Dims()
	_, cb := b.Dims()
	out := mat.NewDense(r, ca+cb, nil)
	out.Slice(0, r, 0, ca).(*mat.Dense).Copy(a)
	out.Slice(0, r, ca, ca+cb).(*mat.Dense).Copy(b)
	return out
}
