// Package forecaster fits and evaluates a decomposable time-series model:
// a piecewise-linear trend with automatically placed changepoints plus Fourier
// seasonalities, combined additively or multiplicatively.
//
// Fitting is a single ridge-regularised least-squares solve, so it is
// deterministic for identical history and parameters.
//
// Basic usage:
//
//	m, err := forecaster.Fit(history, params)
//	if err != nil {
//		log.Fatal(err)
//	}
//	rows := m.Predict(timestamps)
package forecaster
