// Package scenario provides an experiment harness for validating the
// statistical behavior of the full estimation pipeline.
//
// A scenario exercises the real models, likelihood estimators, samplers and
// SQLiteRunStore with no mocks. Runs may be split into chunks; every chunk
// after the first resumes from the final state stored by the previous one,
// so the harness also covers run continuation.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestGaussianRULA(t *testing.T) {
//	    r := scenario.NewRunner(t)
//	    result := r.Run(scenario.Scenario{
//	        Name:   "gaussian-rula",
//	        Config: cfg,
//	        Chunks: []int{250, 250},
//	    })
//	    scenario.AssertMeanWithin(t, result, []float64{1, 1}, 0.3, 250)
//	}
package scenario
