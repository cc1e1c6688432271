// Package export flattens validation results into tabular rows for the
// console table and CSV download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"signagectl/internal/policy"
)

// Row is one issue flattened to a report line.
type Row struct {
	DeviceName    string `json:"deviceName"`
	SiteName      string `json:"siteName"`
	IssueType     string `json:"issueType"`
	Severity      string `json:"severity"`
	Message       string `json:"message"`
	CurrentValue  string `json:"currentValue"`
	ExpectedValue string `json:"expectedValue"`
}

// Rows flattens device reports into one row per issue, ordered by severity
// (most severe first), then site, then device name.
func Rows(reports []policy.DeviceIssueReport) []Row {
	var rows []Row
	for _, report := range reports {
		for _, issue := range report.Issues {
			rows = append(rows, Row{
				DeviceName:    report.DeviceName,
				SiteName:      report.SiteName,
				IssueType:     string(issue.Type),
				Severity:      string(issue.Severity),
				Message:       issue.Message,
				CurrentValue:  issue.CurrentValue,
				ExpectedValue: issue.ExpectedValue,
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ri, rj := policy.Severity(rows[i].Severity).Rank(), policy.Severity(rows[j].Severity).Rank()
		if ri != rj {
			return ri > rj
		}
		if rows[i].SiteName != rows[j].SiteName {
			return rows[i].SiteName < rows[j].SiteName
		}
		return rows[i].DeviceName < rows[j].DeviceName
	})
	return rows
}

// WriteCSV writes the report rows with a header line.
func WriteCSV(w io.Writer, reports []policy.DeviceIssueReport) error {
	writer := csv.NewWriter(w)
	header := []string{"Device Name", "Site Name", "Issue Type", "Severity", "Message", "Current Value", "Expected Value"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range Rows(reports) {
		record := []string{row.DeviceName, row.SiteName, row.IssueType, row.Severity, row.Message, row.CurrentValue, row.ExpectedValue}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
