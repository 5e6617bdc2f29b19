// Package export serializes aggregation results into tabular CSV text.
// The formatter is pure: output is fully determined by the input rows.
package export

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
)

// Table is a uniform result set: a header of column names and rows of
// values in the same column order.
type Table struct {
	Columns []string
	Rows    [][]any
}

// CSV renders the table as RFC 4180 CSV: values containing the separator,
// quotes, or newlines are quoted with internal quotes doubled; nil values
// become empty fields.
func (t Table) CSV() (string, error) {
	var builder strings.Builder
	writer := csv.NewWriter(&builder)
	if err := writer.Write(t.Columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		fields := make([]string, len(row))
		for j, value := range row {
			fields[j] = formatValue(value)
		}
		if err := writer.Write(fields); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return builder.String(), nil
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Raw tabulates stored event rows.
func Raw(records []storage.EventRecord) Table {
	table := Table{Columns: []string{"id", "sessionId", "ts", "type", "stageId", "domainId", "appVersion", "payload"}}
	for _, record := range records {
		table.Rows = append(table.Rows, []any{
			record.ID,
			record.SessionID,
			record.Timestamp,
			record.Type,
			record.StageID,
			record.DomainID,
			record.AppVersion,
			record.PayloadJSON,
		})
	}
	return table
}

// Stages tabulates the stage stats view.
func Stages(stats []storage.StageStat) Table {
	table := Table{Columns: []string{"stageId", "stageViews", "sessions"}}
	for _, stat := range stats {
		table.Rows = append(table.Rows, []any{stat.StageID, stat.StageViews, stat.Sessions})
	}
	return table
}

// Domains tabulates the domain dwell view.
func Domains(dwells []storage.DomainDwell) Table {
	table := Table{Columns: []string{"stageId", "domainId", "closes", "totalDurationMs", "avgDurationMs"}}
	for _, dwell := range dwells {
		table.Rows = append(table.Rows, []any{dwell.StageID, dwell.DomainID, dwell.Closes, dwell.TotalDurationMs, dwell.AvgDurationMs})
	}
	return table
}

// Projects tabulates the project dwell view.
func Projects(dwells []storage.ProjectDwell) Table {
	table := Table{Columns: []string{"stageId", "domainId", "projectId", "closes", "totalDurationMs", "avgDurationMs"}}
	for _, dwell := range dwells {
		table.Rows = append(table.Rows, []any{dwell.StageID, dwell.DomainID, dwell.ProjectID, dwell.Closes, dwell.TotalDurationMs, dwell.AvgDurationMs})
	}
	return table
}

// Questions tabulates the question accuracy view.
func Questions(stats []storage.QuestionStat) Table {
	table := Table{Columns: []string{"questionId", "totalAnswers", "correctCount", "percentCorrect"}}
	for _, stat := range stats {
		table.Rows = append(table.Rows, []any{stat.QuestionID, stat.TotalAnswers, stat.CorrectCount, stat.PercentCorrect})
	}
	return table
}

// Summary tabulates the by-type breakdown of the summary view.
func Summary(summary storage.Summary) Table {
	table := Table{Columns: []string{"type", "count"}}
	for _, bucket := range summary.ByType {
		table.Rows = append(table.Rows, []any{bucket.Type, bucket.Count})
	}
	return table
}
