package export

import (
	"strings"
	"testing"

	"signagectl/internal/policy"
)

func sampleReports() []policy.DeviceIssueReport {
	return []policy.DeviceIssueReport{
		{
			DeviceID:   "dev-2",
			DeviceName: "Back Office",
			SiteName:   "Springfield",
			Issues: []policy.Issue{
				{
					Type:          policy.IssueDefaultContentSource,
					Severity:      policy.SeverityInfo,
					Message:       "Default content source is acceptable",
					CurrentValue:  "CUSTOM",
					ExpectedValue: "com.digitaltouchsystems.snap",
				},
				{
					Type:          policy.IssuePowerSchedule,
					Severity:      policy.SeverityError,
					Message:       "Display is in standby",
					CurrentValue:  "STANDBY",
					ExpectedValue: "ON",
				},
			},
		},
		{
			DeviceID:   "dev-1",
			DeviceName: "Lobby",
			SiteName:   "Capital City",
			Issues: []policy.Issue{
				{
					Type:          policy.IssueTimeZone,
					Severity:      policy.SeverityError,
					Message:       "Time zone mismatch",
					CurrentValue:  "America/New_York",
					ExpectedValue: "America/Chicago",
				},
			},
		},
	}
}

func TestRowsOrdering(t *testing.T) {
	rows := Rows(sampleReports())
	if len(rows) != 3 {
		t.Fatalf("Rows() returned %d rows, want 3", len(rows))
	}

	// Errors before info; ties broken by site then device.
	if rows[0].DeviceName != "Lobby" || rows[0].Severity != string(policy.SeverityError) {
		t.Errorf("rows[0] = %+v, want Lobby error first", rows[0])
	}
	if rows[1].DeviceName != "Back Office" || rows[1].Severity != string(policy.SeverityError) {
		t.Errorf("rows[1] = %+v, want Back Office error", rows[1])
	}
	if rows[2].Severity != string(policy.SeverityInfo) {
		t.Errorf("rows[2] = %+v, want the info row last", rows[2])
	}
}

func TestRowsEmpty(t *testing.T) {
	if rows := Rows(nil); len(rows) != 0 {
		t.Errorf("Rows(nil) = %+v, want empty", rows)
	}
	noIssues := []policy.DeviceIssueReport{{DeviceID: "dev-1", DeviceName: "Lobby"}}
	if rows := Rows(noIssues); len(rows) != 0 {
		t.Errorf("Rows() = %+v, want no rows for a clean device", rows)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	if err := WriteCSV(&buf, sampleReports()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("CSV has %d lines, want header plus 3 rows:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Device Name,Site Name,Issue Type,Severity,Message,Current Value,Expected Value" {
		t.Errorf("Header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Lobby,Capital City,timeZone,error,") {
		t.Errorf("First row = %q, want the Lobby time zone error", lines[1])
	}
	if !strings.Contains(lines[3], "com.digitaltouchsystems.snap") {
		t.Errorf("Last row = %q, want the info row with the expected app", lines[3])
	}
}
