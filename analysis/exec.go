package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/richinex/delphi/artifact"
	"github.com/richinex/delphi/model"
)

// execution interprets one validated plan. It is created per run and holds
// the full capability set a plan may touch: the current dataset, the
// upload mapping, the artifact store and a fresh chart renderer.
type execution struct {
	data  any
	files map[string]artifact.Ref
	store *artifact.Store
}

// run resolves the source, applies transforms in order and computes every
// output into an ordered result mapping.
func (e *execution) run(plan *Plan) (*model.Mapping, error) {
	records, err := e.resolveSource(plan.Source)
	if err != nil {
		return nil, err
	}

	for i, t := range plan.Transforms {
		records, err = applyTransform(records, t)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, t.Op, err)
		}
	}

	renderer := newRenderer(e.store)
	defer renderer.Close()

	result := model.NewMapping()
	for _, out := range plan.Outputs {
		value, err := e.computeOutput(records, out, renderer)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}
		result.Set(out.Name, value)
	}
	return result, nil
}

func (e *execution) resolveSource(src Source) ([]map[string]any, error) {
	switch src.Kind {
	case SourceData:
		return toRecords(e.data)
	case SourceFile:
		ref, ok := e.files[src.Name]
		if !ok {
			return nil, fmt.Errorf("no uploaded file named %q", src.Name)
		}
		data, err := e.store.Read(ref)
		if err != nil {
			return nil, err
		}
		return parseFileRecords(src.Name, data)
	case SourceSQL:
		return e.querySQL(src.Query)
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

func applyTransform(records []map[string]any, t Transform) ([]map[string]any, error) {
	switch t.Op {
	case OpFilter:
		return filterRecords(records, t)
	case OpCleanNumeric:
		fields := t.Fields
		if len(fields) == 0 {
			fields = []string{t.Field}
		}
		for _, rec := range records {
			for _, f := range fields {
				if v, ok := rec[f]; ok {
					if n, ok := asFloat(v); ok {
						rec[f] = n
					}
				}
			}
		}
		return records, nil
	case OpSort:
		sorted := make([]map[string]any, len(records))
		copy(sorted, records)
		sort.SliceStable(sorted, func(i, j int) bool {
			less := compareValues(sorted[i][t.Field], sorted[j][t.Field]) < 0
			if t.Desc {
				return !less
			}
			return less
		})
		return sorted, nil
	case OpLimit:
		if t.N < len(records) {
			return records[:t.N], nil
		}
		return records, nil
	case OpSelect:
		selected := make([]map[string]any, len(records))
		for i, rec := range records {
			row := make(map[string]any, len(t.Fields))
			for _, f := range t.Fields {
				if v, ok := rec[f]; ok {
					row[f] = v
				}
			}
			selected[i] = row
		}
		return selected, nil
	default:
		return nil, fmt.Errorf("unknown transform %q", t.Op)
	}
}

func filterRecords(records []map[string]any, t Transform) ([]map[string]any, error) {
	var kept []map[string]any
	for _, rec := range records {
		v, ok := rec[t.Field]
		if !ok {
			continue
		}
		match, err := compare(v, t.Cmp, t.Value)
		if err != nil {
			return nil, err
		}
		if match {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

func compare(v any, cmp string, target any) (bool, error) {
	if cmp == "contains" {
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", v)),
			strings.ToLower(fmt.Sprintf("%v", target)),
		), nil
	}
	c := compareValues(v, target)
	switch cmp {
	case "eq":
		return c == 0, nil
	case "ne":
		return c != 0, nil
	case "gt":
		return c > 0, nil
	case "ge":
		return c >= 0, nil
	case "lt":
		return c < 0, nil
	case "le":
		return c <= 0, nil
	default:
		return false, fmt.Errorf("unknown comparison %q", cmp)
	}
}

// compareValues orders two values numerically when both parse as numbers,
// lexically otherwise.
func compareValues(a, b any) int {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	if oka && okb {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func (e *execution) computeOutput(records []map[string]any, out Output, renderer *chartRenderer) (any, error) {
	switch out.Op {
	case OutCount:
		return int64(len(records)), nil
	case OutSum:
		nums := fieldNumbers(records, out.Field)
		return sum(nums), nil
	case OutMean:
		nums := fieldNumbers(records, out.Field)
		if len(nums) == 0 {
			return nil, fmt.Errorf("no numeric values in field %q", out.Field)
		}
		return sum(nums) / float64(len(nums)), nil
	case OutMedian:
		nums := fieldNumbers(records, out.Field)
		if len(nums) == 0 {
			return nil, fmt.Errorf("no numeric values in field %q", out.Field)
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 0 {
			return (nums[mid-1] + nums[mid]) / 2, nil
		}
		return nums[mid], nil
	case OutMin:
		nums := fieldNumbers(records, out.Field)
		if len(nums) == 0 {
			return nil, fmt.Errorf("no numeric values in field %q", out.Field)
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Min(m, n)
		}
		return m, nil
	case OutMax:
		nums := fieldNumbers(records, out.Field)
		if len(nums) == 0 {
			return nil, fmt.Errorf("no numeric values in field %q", out.Field)
		}
		m := nums[0]
		for _, n := range nums[1:] {
			m = math.Max(m, n)
		}
		return m, nil
	case OutCorrelation:
		return correlation(records, out.Field, out.Field2)
	case OutValue:
		if len(records) == 0 {
			return nil, fmt.Errorf("no records to take %q from", out.Field)
		}
		v, ok := records[0][out.Field]
		if !ok {
			return nil, fmt.Errorf("field %q missing from first record", out.Field)
		}
		return v, nil
	case OutList:
		values := make([]any, 0, len(records))
		for _, rec := range records {
			if v, ok := rec[out.Field]; ok {
				values = append(values, v)
			}
		}
		return values, nil
	case OutRows:
		rows := make([]any, len(records))
		for i, rec := range records {
			rows[i] = rec
		}
		return rows, nil
	case OutExport:
		data, err := recordsToCSV(records)
		if err != nil {
			return nil, err
		}
		ref, err := e.store.Save(out.Name+".csv", data, artifact.CategoryGenerated)
		if err != nil {
			return nil, err
		}
		return ref, nil
	case OutPlot:
		ref, err := renderer.Render(out.Name, records, out.Plot)
		if err != nil {
			return nil, err
		}
		return ref, nil
	default:
		return nil, fmt.Errorf("unknown output %q", out.Op)
	}
}

func fieldNumbers(records []map[string]any, field string) []float64 {
	nums := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := rec[field]; ok {
			if n, ok := asFloat(v); ok {
				nums = append(nums, n)
			}
		}
	}
	return nums
}

func sum(nums []float64) float64 {
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total
}

// correlation computes the Pearson coefficient over record pairs where both
// fields are numeric.
func correlation(records []map[string]any, fieldA, fieldB string) (any, error) {
	var xs, ys []float64
	for _, rec := range records {
		x, okx := asFloat(rec[fieldA])
		y, oky := asFloat(rec[fieldB])
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) < 2 {
		return nil, fmt.Errorf("need at least 2 numeric pairs of %q and %q", fieldA, fieldB)
	}
	n := float64(len(xs))
	meanX := sum(xs) / n
	meanY := sum(ys) / n
	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return nil, fmt.Errorf("zero variance in %q or %q", fieldA, fieldB)
	}
	return cov / math.Sqrt(varX*varY), nil
}
