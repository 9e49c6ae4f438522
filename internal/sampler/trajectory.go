package sampler

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/synthlik/internal/objective"
	"gonum.org/v1/gonum/mat"
)

// Field names a per-step quantity that Run can record.
type Field string

const (
	// FieldTheta is the proposed point of each step. For the Langevin
	// samplers it equals the new position unless halving was exhausted.
	FieldTheta Field = "theta"
	// FieldCurrent is the chain position after each step.
	FieldCurrent   Field = "current"
	FieldObjective Field = "objective"
	FieldGradient  Field = "gradient"
	FieldHessian   Field = "hessian"
	FieldCounter   Field = "counter"
	FieldAccepted  Field = "accepted"
	FieldHalvings  Field = "halvings"
)

// AllFields lists every recordable field in canonical order.
var AllFields = []Field{
	FieldTheta, FieldCurrent, FieldObjective, FieldGradient,
	FieldHessian, FieldCounter, FieldAccepted, FieldHalvings,
}

// DefaultFields are recorded when no fields are requested.
var DefaultFields = []Field{FieldTheta, FieldObjective}

// ParseFields parses a comma-separated list of field names. Duplicates are
// dropped; an empty string yields DefaultFields.
func ParseFields(s string) ([]Field, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]Field(nil), DefaultFields...), nil
	}
	seen := make(map[Field]bool)
	var out []Field
	for _, part := range strings.Split(s, ",") {
		f := Field(strings.ToLower(strings.TrimSpace(part)))
		if !f.valid() {
			return nil, fmt.Errorf("unknown trajectory field %q", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func (f Field) valid() bool {
	for _, g := range AllFields {
		if f == g {
			return true
		}
	}
	return false
}

// fieldsWant returns the derivatives the requested fields require.
func fieldsWant(fields []Field) objective.Want {
	var w objective.Want
	for _, f := range fields {
		switch f {
		case FieldGradient:
			w.Gradient = true
		case FieldHessian:
			w.Hessian = true
		}
	}
	return w
}

// Stack3 is a steps × n × n array of matrices stored step-major.
type Stack3 struct {
	Steps, N int
	Data     []float64
}

// At returns element (j, k) of matrix i.
func (s *Stack3) At(i, j, k int) float64 {
	return s.Data[(i*s.N+j)*s.N+k]
}

// Matrix returns matrix i as a view into Data.
func (s *Stack3) Matrix(i int) *mat.Dense {
	size := s.N * s.N
	return mat.NewDense(s.N, s.N, s.Data[i*size:(i+1)*size])
}

// Trajectory holds the recorded fields of a run, one row or element per
// step. Fields that were not requested are nil.
type Trajectory struct {
	Fields    []Field
	Theta     *mat.Dense
	Current   *mat.Dense
	Objective []float64
	Gradient  *mat.Dense
	Hessian   *Stack3
	Counter   []int
	Accepted  []bool
	Halvings  []int

	steps int
}

// Len returns the number of recorded steps.
func (t *Trajectory) Len() int { return t.steps }

// Has reports whether f was recorded.
func (t *Trajectory) Has(f Field) bool {
	for _, g := range t.Fields {
		if g == f {
			return true
		}
	}
	return false
}

// AcceptedTheta returns the rows of Theta whose step was accepted. For
// random-walk Metropolis this is the chain without the repeats left by
// rejections. It returns nil unless both fields were recorded or when no
// step was accepted.
func (t *Trajectory) AcceptedTheta() *mat.Dense {
	if t.Theta == nil || t.Accepted == nil {
		return nil
	}
	var rows []int
	for i, a := range t.Accepted {
		if a {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	_, c := t.Theta.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, t.Theta.RawRowView(r))
	}
	return out
}

// AcceptanceRate returns the fraction of accepted steps, or NaN when the
// accepted field was not recorded or the run was empty.
func (t *Trajectory) AcceptanceRate() float64 {
	if len(t.Accepted) == 0 {
		return math.NaN()
	}
	var n int
	for _, a := range t.Accepted {
		if a {
			n++
		}
	}
	return float64(n) / float64(len(t.Accepted))
}

// collector accumulates per-step snapshots into growable buffers sized for
// the expected step count.
type collector struct {
	fields []Field
	dim    int
	steps  int

	theta, current, objective, gradient, hessian []float64

	counter, halvings []int

	accepted []bool
}

func newCollector(fields []Field, dim, steps int) *collector {
	c := &collector{fields: fields, dim: dim}
	for _, f := range fields {
		switch f {
		case FieldTheta:
			c.theta = make([]float64, 0, steps*dim)
		case FieldCurrent:
			c.current = make([]float64, 0, steps*dim)
		case FieldObjective:
			c.objective = make([]float64, 0, steps)
		case FieldGradient:
			c.gradient = make([]float64, 0, steps*dim)
		case FieldHessian:
			c.hessian = make([]float64, 0, steps*dim*dim)
		case FieldCounter:
			c.counter = make([]int, 0, steps)
		case FieldAccepted:
			c.accepted = make([]bool, 0, steps)
		case FieldHalvings:
			c.halvings = make([]int, 0, steps)
		}
	}
	return c
}

func (c *collector) add(st *State) {
	c.steps++
	for _, f := range c.fields {
		switch f {
		case FieldTheta:
			c.theta = append(c.theta, st.Proposed...)
		case FieldCurrent:
			c.current = append(c.current, st.Theta...)
		case FieldObjective:
			c.objective = append(c.objective, st.Objective)
		case FieldGradient:
			c.gradient = append(c.gradient, st.Gradient...)
		case FieldHessian:
			for j := 0; j < c.dim; j++ {
				for k := 0; k < c.dim; k++ {
					c.hessian = append(c.hessian, st.Hessian.At(j, k))
				}
			}
		case FieldCounter:
			c.counter = append(c.counter, st.Counter)
		case FieldAccepted:
			c.accepted = append(c.accepted, st.Accepted)
		case FieldHalvings:
			c.halvings = append(c.halvings, st.Halvings)
		}
	}
}

func (c *collector) finalize() *Trajectory {
	t := &Trajectory{Fields: c.fields, steps: c.steps}
	dense := func(buf []float64) *mat.Dense {
		if buf == nil || c.steps == 0 {
			return nil
		}
		return mat.NewDense(c.steps, c.dim, buf)
	}
	t.Theta = dense(c.theta)
	t.Current = dense(c.current)
	t.Gradient = dense(c.gradient)
	t.Objective = c.objective
	t.Counter = c.counter
	t.Accepted = c.accepted
	t.Halvings = c.halvings
	if c.hessian != nil {
		t.Hessian = &Stack3{Steps: c.steps, N: c.dim, Data: c.hessian}
	}
	return t
}
