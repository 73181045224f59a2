package storage

import (
	"github.com/xtxerr/arraymon/internal/series"
	"github.com/xtxerr/arraymon/internal/storage/types"
)

// PointRows flattens normalized points into storage rows, one row per
// present field. Absent fields produce no row: the store keeps
// observations, not schema placeholders.
func PointRows(points []series.Point) []types.Row {
	var rows []types.Row
	for i := range points {
		rows = appendPointRows(rows, &points[i])
	}
	return rows
}

func appendPointRows(rows []types.Row, p *series.Point) []types.Row {
	if len(p.Fields) == 0 {
		return rows
	}

	tags := p.TagString()
	tsMs := p.Timestamp.UnixMilli()

	// FieldNames is sorted, so rows come out in a stable order
	for _, name := range p.FieldNames() {
		fv := p.Fields[name]
		if fv.IsAbsent() {
			continue
		}

		row := types.Row{
			Measurement: p.Measurement,
			Tags:        tags,
			Field:       name,
			TimestampMs: tsMs,
		}

		switch fv.Kind {
		case series.KindFloat:
			row.Kind = types.ValueKindFloat
			row.Value = fv.Num
		case series.KindInt:
			row.Kind = types.ValueKindInt
			row.Value = float64(fv.Int)
		case series.KindBool:
			row.Kind = types.ValueKindBool
			if fv.Bool {
				row.Value = 1
			}
		case series.KindString:
			row.Kind = types.ValueKindText
			row.TextValue = fv.Str
		}

		rows = append(rows, row)
	}

	return rows
}
