// Package export writes sampler trajectories as Arrow IPC files so that
// they can be loaded by dataframe tooling outside Go.
package export

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/synthlik/internal/sampler"
	"gonum.org/v1/gonum/mat"
)

// Column names. Vector fields are spread over one column per component,
// e.g. theta_0, theta_1.
const (
	ColStep      = "step"
	ColObjective = "objective"
	ColAccepted  = "accepted"
	ColHalvings  = "halvings"
	ColHessian   = "hessian"

	PrefixTheta    = "theta_"
	PrefixCurrent  = "current_"
	PrefixGradient = "gradient_"
)

// MetaDim is the schema metadata key holding the parameter dimension.
const MetaDim = "synthlik.dim"

// Schema returns the Arrow schema for tr's recorded fields.
func Schema(tr *sampler.Trajectory) *arrow.Schema {
	dim := trajectoryDim(tr)
	fields := []arrow.Field{{Name: ColStep, Type: arrow.PrimitiveTypes.Int64}}

	vector := func(prefix string) {
		for i := 0; i < dim; i++ {
			fields = append(fields, arrow.Field{Name: prefix + strconv.Itoa(i), Type: arrow.PrimitiveTypes.Float64})
		}
	}
	if tr.Theta != nil {
		vector(PrefixTheta)
	}
	if tr.Current != nil {
		vector(PrefixCurrent)
	}
	if tr.Objective != nil {
		fields = append(fields, arrow.Field{Name: ColObjective, Type: arrow.PrimitiveTypes.Float64})
	}
	if tr.Gradient != nil {
		vector(PrefixGradient)
	}
	if tr.Hessian != nil {
		fields = append(fields, arrow.Field{
			Name: ColHessian,
			Type: arrow.FixedSizeListOf(int32(dim*dim), arrow.PrimitiveTypes.Float64),
		})
	}
	if tr.Accepted != nil {
		fields = append(fields, arrow.Field{Name: ColAccepted, Type: arrow.FixedWidthTypes.Boolean})
	}
	if tr.Halvings != nil {
		fields = append(fields, arrow.Field{Name: ColHalvings, Type: arrow.PrimitiveTypes.Int64})
	}

	md := arrow.NewMetadata([]string{MetaDim}, []string{strconv.Itoa(dim)})
	return arrow.NewSchema(fields, &md)
}

// WriteArrow writes tr to w as an Arrow IPC file holding one record batch.
// The file format ends with a footer of block offsets, so w must seek.
func WriteArrow(w io.WriteSeeker, tr *sampler.Trajectory) error {
	if tr == nil {
		return fmt.Errorf("export: nil trajectory")
	}
	mem := memory.NewGoAllocator()
	schema := Schema(tr)

	rec := buildRecord(mem, schema, tr)
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("export: creating writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("export: writing record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("export: closing writer: %w", err)
	}
	return nil
}

// WriteArrowFile writes tr to path, replacing any existing file.
func WriteArrowFile(path string, tr *sampler.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := WriteArrow(f, tr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func buildRecord(mem memory.Allocator, schema *arrow.Schema, tr *sampler.Trajectory) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	n := tr.Len()
	dim := trajectoryDim(tr)
	col := 0

	steps := b.Field(col).(*array.Int64Builder)
	for i := 0; i < n; i++ {
		if tr.Counter != nil {
			steps.Append(int64(tr.Counter[i]))
		} else {
			steps.Append(int64(i + 1))
		}
	}
	col++

	vector := func(m *mat.Dense) {
		for j := 0; j < dim; j++ {
			fb := b.Field(col).(*array.Float64Builder)
			for i := 0; i < n; i++ {
				fb.Append(m.At(i, j))
			}
			col++
		}
	}
	if tr.Theta != nil {
		vector(tr.Theta)
	}
	if tr.Current != nil {
		vector(tr.Current)
	}
	if tr.Objective != nil {
		b.Field(col).(*array.Float64Builder).AppendValues(tr.Objective, nil)
		col++
	}
	if tr.Gradient != nil {
		vector(tr.Gradient)
	}
	if tr.Hessian != nil {
		lb := b.Field(col).(*array.FixedSizeListBuilder)
		vb := lb.ValueBuilder().(*array.Float64Builder)
		for i := 0; i < n; i++ {
			lb.Append(true)
			for j := 0; j < dim; j++ {
				for k := 0; k < dim; k++ {
					vb.Append(tr.Hessian.At(i, j, k))
				}
			}
		}
		col++
	}
	if tr.Accepted != nil {
		b.Field(col).(*array.BooleanBuilder).AppendValues(tr.Accepted, nil)
		col++
	}
	if tr.Halvings != nil {
		hb := b.Field(col).(*array.Int64Builder)
		for _, h := range tr.Halvings {
			hb.Append(int64(h))
		}
	}

	return b.NewRecord()
}

func trajectoryDim(tr *sampler.Trajectory) int {
	for _, m := range []*mat.Dense{tr.Theta, tr.Current, tr.Gradient} {
		if m != nil {
			_, c := m.Dims()
			return c
		}
	}
	if tr.Hessian != nil {
		return tr.Hessian.N
	}
	return 0
}

// ReadArrowTheta reads the parameter columns of a file written by
// WriteArrow, one row per step. Chain positions are preferred over
// proposals when both were recorded.
func ReadArrowTheta(r ipc.ReadAtSeeker) (*mat.Dense, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("export: opening file: %w", err)
	}
	defer fr.Close()

	schema := fr.Schema()
	prefix := PrefixCurrent
	if !schema.HasField(PrefixCurrent + "0") {
		prefix = PrefixTheta
	}
	var cols []int
	for i := 0; ; i++ {
		idx := schema.FieldIndices(prefix + strconv.Itoa(i))
		if len(idx) == 0 {
			break
		}
		cols = append(cols, idx[0])
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("export: file has no parameter columns")
	}

	var data []float64
	rows := 0
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("export: reading record %d: %w", i, err)
		}
		n := int(rec.NumRows())
		values := make([]*array.Float64, len(cols))
		for j, c := range cols {
			v, ok := rec.Column(c).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("export: column %s is %s, want float64", schema.Field(c).Name, rec.Column(c).DataType())
			}
			values[j] = v
		}
		for k := 0; k < n; k++ {
			for _, v := range values {
				data = append(data, v.Value(k))
			}
		}
		rows += n
	}
	if rows == 0 {
		return nil, fmt.Errorf("export: file has no rows")
	}
	return mat.NewDense(rows, len(cols), data), nil
}
