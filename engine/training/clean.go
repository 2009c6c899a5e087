package training

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/WessleyAI/wessley-pricing/engine/domain"
	"github.com/WessleyAI/wessley-pricing/pkg/fn"
)

// DefaultDropColumns are listing fields the model does not use.
var DefaultDropColumns = []string{"Title", "Model", "Car/Suv", "Location", "Engine", "ColourExtInt"}

// Range is an inclusive bound on a numeric column.
type Range struct{ Min, Max float64 }

// DefaultRanges drop listings outside plausible values.
var DefaultRanges = map[string]Range{
	domain.ColYear:            {2000, 2024},
	domain.ColFuelConsumption: {1, 25},
	domain.ColCylinders:       {2, 10},
	domain.ColSeats:           {2, 15},
	domain.ColPrice:           {1000, 100000},
}

// Sample is one cleaned listing: a vehicle and its asking price.
type Sample struct {
	Record domain.VehicleRecord
	Price  float64
}

// CleanReport counts rows removed at each step.
type CleanReport struct {
	Read         int `json:"read"`
	Filled       int `json:"filled_cells"`
	DroppedDash  int `json:"dropped_dash"`
	DroppedPOA   int `json:"dropped_poa"`
	DroppedParse int `json:"dropped_parse"`
	DroppedRange int `json:"dropped_range"`
	Kept         int `json:"kept"`
}

var (
	nonDigits   = regexp.MustCompile(`[^0-9]`)
	firstNumber = regexp.MustCompile(`\d+\.?\d*`)
)

// DropColumns removes the named columns. Missing names are ignored.
func DropColumns(cols []string) fn.Stage[*Table, *Table] {
	return func(_ context.Context, t *Table) fn.Result[*Table] {
		drop := make(map[int]bool)
		for _, c := range cols {
			if i := t.Col(c); i >= 0 {
				drop[i] = true
			}
		}
		out := &Table{Rows: make([][]string, len(t.Rows))}
		for i, h := range t.Header {
			if !drop[i] {
				out.Header = append(out.Header, h)
			}
		}
		for r, row := range t.Rows {
			kept := make([]string, 0, len(out.Header))
			for i, v := range row {
				if !drop[i] {
					kept = append(kept, v)
				}
			}
			out.Rows[r] = kept
		}
		return fn.Ok(out)
	}
}

// FillMode replaces empty cells with the most frequent value of their
// column. Ties go to the value seen first.
func FillMode(report *CleanReport) fn.Stage[*Table, *Table] {
	return func(_ context.Context, t *Table) fn.Result[*Table] {
		for c := range t.Header {
			mode, ok := columnMode(t, c)
			if !ok {
				continue
			}
			for _, row := range t.Rows {
				if row[c] == "" {
					row[c] = mode
					report.Filled++
				}
			}
		}
		return fn.Ok(t)
	}
}

func columnMode(t *Table, c int) (string, bool) {
	counts := make(map[string]int)
	var order []string
	for _, row := range t.Rows {
		v := row[c]
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestN := "", 0
	for _, v := range order {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best, bestN > 0
}

// DropContaining removes rows with any cell containing substr.
func DropContaining(substr string, report *CleanReport) fn.Stage[*Table, *Table] {
	return func(_ context.Context, t *Table) fn.Result[*Table] {
		n := len(t.Rows)
		t.Rows = fn.Filter(t.Rows, func(row []string) bool {
			for _, v := range row {
				if strings.Contains(v, substr) {
					return false
				}
			}
			return true
		})
		report.DroppedDash += n - len(t.Rows)
		return fn.Ok(t)
	}
}

// DropValue removes rows whose column equals value exactly.
func DropValue(col, value string, report *CleanReport) fn.Stage[*Table, *Table] {
	return func(_ context.Context, t *Table) fn.Result[*Table] {
		i := t.Col(col)
		if i < 0 {
			return fn.Err[*Table](fmt.Errorf("training: no column %s", col))
		}
		n := len(t.Rows)
		t.Rows = fn.Filter(t.Rows, func(row []string) bool { return row[i] != value })
		report.DroppedPOA += n - len(t.Rows)
		return fn.Ok(t)
	}
}

// requiredColumns must be present after cleaning.
var requiredColumns = []string{
	domain.ColBrand, domain.ColYear, domain.ColUsedOrNew, domain.ColTransmission,
	domain.ColDriveType, domain.ColFuelType, domain.ColFuelConsumption, domain.ColKilometres,
	domain.ColCylinders, domain.ColBodyType, domain.ColDoors, domain.ColSeats, domain.ColPrice,
}

// ToSamples parses each row into a Sample. Integer columns keep only their
// digits, FuelConsumption takes the first number in the cell, and Year and
// Price must be plain integers. Rows that fail to parse are dropped.
func ToSamples(report *CleanReport) fn.Stage[*Table, []Sample] {
	return func(_ context.Context, t *Table) fn.Result[[]Sample] {
		idx := make(map[string]int, len(requiredColumns))
		for _, c := range requiredColumns {
			i := t.Col(c)
			if i < 0 {
				return fn.Err[[]Sample](fmt.Errorf("training: no column %s", c))
			}
			idx[c] = i
		}
		out := make([]Sample, 0, len(t.Rows))
		for _, row := range t.Rows {
			s, err := parseSample(row, idx)
			if err != nil {
				report.DroppedParse++
				continue
			}
			out = append(out, s)
		}
		return fn.Ok(out)
	}
}

func parseSample(row []string, idx map[string]int) (Sample, error) {
	get := func(c string) string { return row[idx[c]] }

	var (
		r   domain.VehicleRecord
		err error
	)
	r.Brand = get(domain.ColBrand)
	r.BodyType = get(domain.ColBodyType)
	r.UsedOrNew = domain.Condition(get(domain.ColUsedOrNew))
	r.Transmission = domain.Transmission(get(domain.ColTransmission))
	r.DriveType = domain.DriveType(get(domain.ColDriveType))
	r.FuelType = domain.FuelType(get(domain.ColFuelType))

	for _, f := range []struct {
		col string
		dst *int
	}{
		{domain.ColSeats, &r.Seats},
		{domain.ColDoors, &r.Doors},
		{domain.ColCylinders, &r.CylindersinEngine},
		{domain.ColKilometres, &r.Kilometres},
	} {
		if *f.dst, err = strconv.Atoi(nonDigits.ReplaceAllString(get(f.col), "")); err != nil {
			return Sample{}, fmt.Errorf("%s: %w", f.col, err)
		}
	}

	num := firstNumber.FindString(get(domain.ColFuelConsumption))
	if r.FuelConsumption, err = strconv.ParseFloat(num, 64); err != nil {
		return Sample{}, fmt.Errorf("%s: %w", domain.ColFuelConsumption, err)
	}
	if r.Year, err = strconv.Atoi(get(domain.ColYear)); err != nil {
		return Sample{}, fmt.Errorf("%s: %w", domain.ColYear, err)
	}
	price, err := strconv.Atoi(get(domain.ColPrice))
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", domain.ColPrice, err)
	}
	return Sample{Record: r, Price: float64(price)}, nil
}

// FilterRanges keeps samples whose columns fall inside every range.
func FilterRanges(ranges map[string]Range, report *CleanReport) fn.Stage[[]Sample, []Sample] {
	return func(_ context.Context, in []Sample) fn.Result[[]Sample] {
		out := fn.Filter(in, func(s Sample) bool {
			for col, rg := range ranges {
				v, ok := sampleValue(s, col)
				if ok && (v < rg.Min || v > rg.Max) {
					return false
				}
			}
			return true
		})
		report.DroppedRange += len(in) - len(out)
		return fn.Ok(out)
	}
}

func sampleValue(s Sample, col string) (float64, bool) {
	if col == domain.ColPrice {
		return s.Price, true
	}
	return s.Record.Numeric(col)
}

// Clean runs the full cleaning pipeline over a raw table.
func Clean(ctx context.Context, t *Table, drop []string, ranges map[string]Range) ([]Sample, CleanReport, error) {
	report := CleanReport{Read: t.Len()}
	tableSteps := fn.Pipeline(
		fn.TracedStage("training.drop_columns", DropColumns(drop)),
		fn.TracedStage("training.fill_mode", FillMode(&report)),
		fn.TracedStage("training.drop_dash", DropContaining("-", &report)),
		fn.TracedStage("training.drop_poa", DropValue(domain.ColPrice, "POA", &report)),
	)
	clean := fn.Then(
		fn.Then(tableSteps, fn.TracedStage("training.parse", ToSamples(&report))),
		fn.TracedStage("training.filter_ranges", FilterRanges(ranges, &report)),
	)
	samples, err := clean(ctx, t).Unwrap()
	if err != nil {
		return nil, report, err
	}
	report.Kept = len(samples)
	return samples, report, nil
}
