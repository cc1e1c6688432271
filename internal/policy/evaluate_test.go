package policy

import (
	"reflect"
	"testing"

	"signagectl/internal/wave"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func testPolicy() Policy {
	return Policy{
		TimeZone:         "America/Chicago",
		PreferredApp:     "com.digitaltouchsystems.snap",
		AcceptableSource: "CUSTOM",
		ExpectedPower:    "ON",
	}
}

func compliantDevice() *wave.DeviceSnapshot {
	return &wave.DeviceSnapshot{
		ID:    "dev-1",
		Alias: "Lobby",
		Site:  &wave.Site{ID: "site-1", Name: "Store 42"},
		TimeZone: &wave.TimeZoneState{
			Reported: strPtr("America/Chicago"),
		},
		PowerSettings: &wave.PowerSettings{
			Reported: &wave.SignalDetectionState{SignalDetection: boolPtr(false)},
		},
		ContentSource: &wave.ContentSourceState{
			Current: &wave.ContentSourceSlot{
				Reported: &wave.ContentSource{ApplicationID: "com.digitaltouchsystems.snap"},
			},
			Default: &wave.ContentSourceSlot{
				Reported: &wave.ContentSource{ApplicationID: "com.digitaltouchsystems.snap"},
			},
		},
		Power: &wave.PowerState{Reported: strPtr("ON")},
		RecommendedSettings: &wave.RecommendedSettings{
			Reported: &wave.RecommendedReport{Compliant: boolPtr(true)},
		},
	}
}

func TestCompliantDeviceHasNoIssues(t *testing.T) {
	issues := Evaluate(compliantDevice(), All(), testPolicy())
	if len(issues) != 0 {
		t.Errorf("Expected no issues, got %+v", issues)
	}
}

func TestDeviceWithoutIDIsSkipped(t *testing.T) {
	device := compliantDevice()
	device.ID = ""
	device.Power.Reported = strPtr("STANDBY")
	if issues := Evaluate(device, All(), testPolicy()); issues != nil {
		t.Errorf("Expected nil for device without id, got %+v", issues)
	}
	if report := EvaluateDevice(device, All(), testPolicy()); report != nil {
		t.Errorf("Expected nil report for device without id, got %+v", report)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	device := compliantDevice()
	device.TimeZone.Reported = strPtr("America/New_York")
	device.Power.Reported = strPtr("STANDBY")

	first := Evaluate(device, All(), testPolicy())
	second := Evaluate(device, All(), testPolicy())
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Evaluate not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestTimeZoneCheck(t *testing.T) {
	tests := []struct {
		name     string
		timeZone *wave.TimeZoneState
		want     []Issue
	}{
		{
			// End-to-end: reported zone differs from policy.
			name:     "mismatch is an error",
			timeZone: &wave.TimeZoneState{Reported: strPtr("America/New_York")},
			want: []Issue{{
				Type: IssueTimeZone, Severity: SeverityError,
				CurrentValue: "America/New_York", ExpectedValue: "America/Chicago",
			}},
		},
		{
			name:     "unset is a warning",
			timeZone: &wave.TimeZoneState{},
			want: []Issue{{
				Type: IssueTimeZone, Severity: SeverityWarning,
				CurrentValue: "Not set", ExpectedValue: "America/Chicago",
			}},
		},
		{
			name:     "field absent yields nothing",
			timeZone: nil,
			want:     nil,
		},
		{
			name:     "match yields nothing",
			timeZone: &wave.TimeZoneState{Reported: strPtr("America/Chicago")},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := compliantDevice()
			device.TimeZone = tt.timeZone
			got := Evaluate(device, CheckSelector{TimeZone: true}, testPolicy())
			assertIssues(t, got, tt.want)
		})
	}
}

func TestCurrentContentSourceCheck(t *testing.T) {
	tests := []struct {
		name    string
		current *wave.ContentSourceSlot
		want    []Issue
	}{
		{
			// End-to-end: no current source at all.
			name:    "absent is an error with Unknown current value",
			current: nil,
			want: []Issue{{
				Type: IssueContentSource, Severity: SeverityError, CurrentValue: "Unknown",
			}},
		},
		{
			name:    "preferred app yields nothing",
			current: &wave.ContentSourceSlot{Reported: &wave.ContentSource{ApplicationID: "com.digitaltouchsystems.snap"}},
			want:    nil,
		},
		{
			name:    "acceptable source is a warning",
			current: &wave.ContentSourceSlot{Reported: &wave.ContentSource{Source: "CUSTOM"}},
			want: []Issue{{
				Type: IssueContentSource, Severity: SeverityWarning, CurrentValue: "CUSTOM",
			}},
		},
		{
			name:    "unapproved app is an error",
			current: &wave.ContentSourceSlot{Reported: &wave.ContentSource{ApplicationID: "com.example.other"}},
			want: []Issue{{
				Type: IssueContentSource, Severity: SeverityError, CurrentValue: "com.example.other",
			}},
		},
		{
			name:    "unapproved input is an error",
			current: &wave.ContentSourceSlot{Reported: &wave.ContentSource{Source: "HDMI_1"}},
			want: []Issue{{
				Type: IssueContentSource, Severity: SeverityError, CurrentValue: "HDMI_1",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := compliantDevice()
			device.ContentSource.Current = tt.current
			got := Evaluate(device, CheckSelector{DefaultSource: true}, testPolicy())
			assertIssues(t, got, tt.want)
		})
	}
}

// The default-source grading is deliberately softer than the current-source
// grading: warning / info instead of error / warning.
func TestDefaultContentSourceCheck(t *testing.T) {
	tests := []struct {
		name string
		slot *wave.ContentSourceSlot
		want []Issue
	}{
		{
			name: "absent is a warning",
			slot: nil,
			want: []Issue{{
				Type: IssueDefaultContentSource, Severity: SeverityWarning, CurrentValue: "Not configured",
			}},
		},
		{
			name: "preferred app yields nothing",
			slot: &wave.ContentSourceSlot{Reported: &wave.ContentSource{ApplicationID: "com.digitaltouchsystems.snap"}},
			want: nil,
		},
		{
			name: "acceptable source is info",
			slot: &wave.ContentSourceSlot{Reported: &wave.ContentSource{Source: "CUSTOM"}},
			want: []Issue{{
				Type: IssueDefaultContentSource, Severity: SeverityInfo, CurrentValue: "CUSTOM",
			}},
		},
		{
			name: "unapproved value is a warning",
			slot: &wave.ContentSourceSlot{Reported: &wave.ContentSource{Source: "HDMI_1"}},
			want: []Issue{{
				Type: IssueDefaultContentSource, Severity: SeverityWarning, CurrentValue: "HDMI_1",
			}},
		},
		{
			name: "desired wins over reported",
			slot: &wave.ContentSourceSlot{
				Reported: &wave.ContentSource{Source: "HDMI_1"},
				Desired:  &wave.ContentSource{ApplicationID: "com.digitaltouchsystems.snap"},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := compliantDevice()
			device.ContentSource.Default = tt.slot
			got := Evaluate(device, CheckSelector{DefaultSource: true}, testPolicy())
			assertIssues(t, got, tt.want)
		})
	}
}

func TestSignalDetectionCheck(t *testing.T) {
	tests := []struct {
		name     string
		settings *wave.PowerSettings
		want     []Issue
	}{
		{"false yields nothing", &wave.PowerSettings{Reported: &wave.SignalDetectionState{SignalDetection: boolPtr(false)}}, nil},
		{"null yields nothing", &wave.PowerSettings{Reported: &wave.SignalDetectionState{}}, nil},
		{"reported subtree absent yields nothing", &wave.PowerSettings{}, nil},
		{
			"true is exactly one warning",
			&wave.PowerSettings{Reported: &wave.SignalDetectionState{SignalDetection: boolPtr(true)}},
			[]Issue{{
				Type: IssuePowerSettings, Severity: SeverityWarning,
				CurrentValue: "true", ExpectedValue: "false or not set",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := compliantDevice()
			device.PowerSettings = tt.settings
			got := Evaluate(device, CheckSelector{PowerSettings: true}, testPolicy())
			assertIssues(t, got, tt.want)
		})
	}
}

func TestPowerStateCheck(t *testing.T) {
	tests := []struct {
		name     string
		reported *string
		want     []Issue
	}{
		{
			"standby is exactly one error",
			strPtr("STANDBY"),
			[]Issue{{
				Type: IssuePowerSchedule, Severity: SeverityError,
				CurrentValue: "STANDBY", ExpectedValue: "ON",
			}},
		},
		{"on yields nothing", strPtr("ON"), nil},
		{
			"other value is exactly one warning",
			strPtr("SCHEDULED"),
			[]Issue{{
				Type: IssuePowerSchedule, Severity: SeverityWarning,
				CurrentValue: "SCHEDULED", ExpectedValue: "ON",
			}},
		},
		{
			"unreported is a warning",
			nil,
			[]Issue{{
				Type: IssuePowerSchedule, Severity: SeverityWarning,
				CurrentValue: "Not set", ExpectedValue: "ON",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := compliantDevice()
			device.Power = &wave.PowerState{Reported: tt.reported}
			got := Evaluate(device, CheckSelector{PowerSchedules: true}, testPolicy())
			assertIssues(t, got, tt.want)
		})
	}
}

func TestRecommendedSettingsCheck(t *testing.T) {
	device := compliantDevice()
	device.RecommendedSettings = &wave.RecommendedSettings{
		Reported: &wave.RecommendedReport{
			Compliant: boolPtr(false),
			Warnings: []wave.RecommendedWarning{
				{Code: "POWER_MODE", Severity: "HIGH", Description: "wrong power mode"},
				{Code: "BRIGHTNESS", Severity: "LOW", Description: "brightness high"},
			},
		},
	}

	got := Evaluate(device, CheckSelector{RecommendedSettings: true}, testPolicy())
	if len(got) != 3 {
		t.Fatalf("Expected 3 issues, got %d: %+v", len(got), got)
	}
	if got[0].Type != IssueRecommendedSettings || got[0].Severity != SeverityError {
		t.Errorf("Non-compliance issue = %+v", got[0])
	}
	// HIGH severity warnings are promoted to errors.
	if got[1].Type != IssueRecommendedSettingsWarning || got[1].Severity != SeverityError {
		t.Errorf("HIGH warning = %+v", got[1])
	}
	if got[2].Severity != SeverityWarning {
		t.Errorf("LOW warning = %+v", got[2])
	}
}

func TestUnselectedChecksDoNotRun(t *testing.T) {
	device := compliantDevice()
	device.TimeZone.Reported = strPtr("America/New_York")
	device.Power.Reported = strPtr("STANDBY")

	got := Evaluate(device, CheckSelector{PowerSchedules: true}, testPolicy())
	if len(got) != 1 || got[0].Type != IssuePowerSchedule {
		t.Errorf("Expected only the power schedule issue, got %+v", got)
	}
}

func TestEvaluateDeviceDefaults(t *testing.T) {
	device := &wave.DeviceSnapshot{
		ID:    "dev-9",
		Power: &wave.PowerState{Reported: strPtr("STANDBY")},
	}
	report := EvaluateDevice(device, CheckSelector{PowerSchedules: true}, testPolicy())
	if report == nil {
		t.Fatal("Expected a report")
	}
	if report.DeviceName != "dev-9" {
		t.Errorf("DeviceName = %q, want device id fallback", report.DeviceName)
	}
	if report.SiteName != "Unknown Site" {
		t.Errorf("SiteName = %q, want %q", report.SiteName, "Unknown Site")
	}
}

func TestSeverityRank(t *testing.T) {
	if !(SeverityError.Rank() > SeverityWarning.Rank() && SeverityWarning.Rank() > SeverityInfo.Rank()) {
		t.Error("Severity ordering must be error > warning > info")
	}
}

// assertIssues compares type, severity, and current/expected values but not
// the human-readable message strings.
func assertIssues(t *testing.T, got, want []Issue) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Got %d issues, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Type != want[i].Type {
			t.Errorf("Issue %d type = %q, want %q", i, got[i].Type, want[i].Type)
		}
		if got[i].Severity != want[i].Severity {
			t.Errorf("Issue %d severity = %q, want %q", i, got[i].Severity, want[i].Severity)
		}
		if want[i].CurrentValue != "" && got[i].CurrentValue != want[i].CurrentValue {
			t.Errorf("Issue %d currentValue = %q, want %q", i, got[i].CurrentValue, want[i].CurrentValue)
		}
		if want[i].ExpectedValue != "" && got[i].ExpectedValue != want[i].ExpectedValue {
			t.Errorf("Issue %d expectedValue = %q, want %q", i, got[i].ExpectedValue, want[i].ExpectedValue)
		}
	}
}
