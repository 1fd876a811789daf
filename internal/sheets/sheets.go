// Package sheets projects stored activities onto a Google Sheets worksheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lildude/workouttracker/internal/model"
)

// ErrNoActivities is returned when there is nothing to write. Columns are
// derived from the first activity so an empty load is a caller error.
var ErrNoActivities = errors.New("sheets: no activities to save")

const milesToKilometres = 1.60934

// ClearPolicy decides how many data rows are blanked before new values are
// written.
type ClearPolicy string

const (
	// ClearRows blanks only as many rows as are about to be written. Rows
	// left over from a previous, longer load stay in place.
	ClearRows ClearPolicy = "rows"
	// ClearUnion blanks every row in use before the write as well as the
	// rows about to be written.
	ClearUnion ClearPolicy = "union"
)

// ParseClearPolicy returns the policy named by s. Empty means ClearRows.
func ParseClearPolicy(s string) (ClearPolicy, error) {
	switch p := ClearPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ClearRows, nil
	case ClearRows, ClearUnion:
		return p, nil
	default:
		return "", fmt.Errorf("unknown sheet clear policy %q", s)
	}
}

// ValueWriter is a spreadsheet addressable by A1 ranges within one worksheet.
type ValueWriter interface {
	// UpdateValues overwrites the cells of rangeRef with values.
	UpdateValues(ctx context.Context, rangeRef string, values [][]any) error
	// UsedRows returns the number of data rows below the header.
	UsedRows(ctx context.Context) (int, error)
}

// Projector writes activities as a header row followed by one row per activity.
type Projector struct {
	w      ValueWriter
	policy ClearPolicy
	log    logrus.FieldLogger
}

// NewProjector returns a Projector writing through w.
func NewProjector(w ValueWriter, policy ClearPolicy, log logrus.FieldLogger) *Projector {
	if policy == "" {
		policy = ClearRows
	}
	return &Projector{w: w, policy: policy, log: log}
}

// SaveActivities replaces the worksheet contents with activities. The header
// is written first, then the data range is blanked and finally filled.
func (p *Projector) SaveActivities(ctx context.Context, activities []model.Activity) error {
	if len(activities) == 0 {
		return ErrNoActivities
	}

	first := activities[0].Fields()
	cols := make([]string, len(first))
	headers := make([]any, len(first))
	for i, f := range first {
		cols[i] = f.Key
		headers[i] = strings.ReplaceAll(f.Key, "_", " ")
	}
	last := ColumnName(len(cols))

	rows := make([][]any, len(activities))
	for i := range activities {
		row, err := serializeRow(cols, &activities[i])
		if err != nil {
			return err
		}
		rows[i] = row
	}

	clearCount := len(rows)
	if p.policy == ClearUnion {
		used, err := p.w.UsedRows(ctx)
		if err != nil {
			return fmt.Errorf("reading used rows: %w", err)
		}
		clearCount = max(clearCount, used)
	}

	headerRange := fmt.Sprintf("A1:%s1", last)
	if err := p.w.UpdateValues(ctx, headerRange, [][]any{headers}); err != nil {
		return fmt.Errorf("writing header %s: %w", headerRange, err)
	}

	clearRange := fmt.Sprintf("A2:%s%d", last, clearCount+1)
	if err := p.w.UpdateValues(ctx, clearRange, blankRows(clearCount, len(cols))); err != nil {
		return fmt.Errorf("clearing %s: %w", clearRange, err)
	}

	dataRange := fmt.Sprintf("A2:%s%d", last, len(rows)+1)
	if err := p.w.UpdateValues(ctx, dataRange, rows); err != nil {
		return fmt.Errorf("writing %s: %w", dataRange, err)
	}

	p.log.WithFields(logrus.Fields{"rows": len(rows), "cleared": clearCount, "range": dataRange}).Debug("wrote activities to sheet")
	return nil
}

func serializeRow(cols []string, a *model.Activity) ([]any, error) {
	fields := a.Fields()
	byKey := make(map[string]any, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f.Value
	}

	row := make([]any, len(cols))
	for i, c := range cols {
		v, ok := byKey[c]
		if !ok || v == nil {
			row[i] = ""
			continue
		}
		sv, err := serialize(c, v)
		if err != nil {
			return nil, fmt.Errorf("serializing %s of activity %d: %w", c, a.ID, err)
		}
		row[i] = sv
	}
	return row, nil
}

// serialize converts a field to its sheet value. The local start time becomes
// milliseconds since the epoch of its wall clock reading, ignoring the offset.
// Speeds are scaled by 1.60934.
func serialize(key string, value any) (any, error) {
	switch key {
	case "start_date_local":
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		return wall.UnixMilli(), nil
	case "average_speed", "max_speed":
		if f, ok := value.(float64); ok {
			return f * milesToKilometres, nil
		}
	}
	return value, nil
}

func blankRows(n, width int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		row := make([]any, width)
		for j := range row {
			row[j] = ""
		}
		rows[i] = row
	}
	return rows
}

// ColumnName returns the A1 column letters for the 1-based column n.
func ColumnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
