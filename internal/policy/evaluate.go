package policy

import (
	"fmt"

	"signagectl/internal/wave"
)

// IssueType identifies which standard a device violates.
type IssueType string

const (
	IssueTimeZone                   IssueType = "timeZone"
	IssueContentSource              IssueType = "contentSource"
	IssueDefaultContentSource       IssueType = "defaultContentSource"
	IssuePowerSettings              IssueType = "powerSettings"
	IssuePowerSchedule              IssueType = "powerSchedule"
	IssueRecommendedSettings        IssueType = "recommendedSettings"
	IssueRecommendedSettingsWarning IssueType = "recommendedSettingsWarning"
)

// Severity ranks an issue. Error > Warning > Info.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank returns a sortable weight; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Issue is a single policy violation found on a device.
type Issue struct {
	Type          IssueType `json:"type"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	Description   string    `json:"description"`
	CurrentValue  string    `json:"currentValue"`
	ExpectedValue string    `json:"expectedValue"`
}

// DeviceIssueReport collects all issues found on one non-compliant device.
type DeviceIssueReport struct {
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName"`
	SiteName   string  `json:"siteName"`
	Issues     []Issue `json:"issues"`
}

// Evaluate runs the selected checks on one snapshot and returns every issue
// found. Pure: no I/O, deterministic, and a device without an id yields
// nothing (callers must skip such snapshots before reporting).
func Evaluate(device *wave.DeviceSnapshot, checks CheckSelector, p Policy) []Issue {
	if device == nil || device.ID == "" {
		return nil
	}

	var issues []Issue

	if checks.TimeZone && device.TimeZone != nil {
		issues = append(issues, checkTimeZone(device, p)...)
	}
	if checks.DefaultSource {
		issues = append(issues, checkCurrentSource(device, p)...)
		issues = append(issues, checkDefaultSource(device, p)...)
	}
	if checks.PowerSettings && device.PowerSettings != nil {
		issues = append(issues, checkSignalDetection(device)...)
	}
	if checks.PowerSchedules && device.Power != nil {
		issues = append(issues, checkPowerState(device, p)...)
	}
	if checks.RecommendedSettings && device.RecommendedSettings != nil {
		issues = append(issues, checkRecommendedSettings(device)...)
	}

	return issues
}

// EvaluateDevice wraps Evaluate into a per-device report, or nil when the
// device is compliant or has no id.
func EvaluateDevice(device *wave.DeviceSnapshot, checks CheckSelector, p Policy) *DeviceIssueReport {
	issues := Evaluate(device, checks, p)
	if len(issues) == 0 {
		return nil
	}
	return &DeviceIssueReport{
		DeviceID:   device.ID,
		DeviceName: device.Name(),
		SiteName:   device.SiteName(),
		Issues:     issues,
	}
}

func checkTimeZone(device *wave.DeviceSnapshot, p Policy) []Issue {
	description := fmt.Sprintf("Time zone should be set to %s", p.TimeZone)
	current := device.ReportedTimeZone()
	switch {
	case current == "":
		return []Issue{{
			Type:          IssueTimeZone,
			Severity:      SeverityWarning,
			Message:       "Time zone not configured",
			Description:   description,
			CurrentValue:  "Not set",
			ExpectedValue: p.TimeZone,
		}}
	case current != p.TimeZone:
		return []Issue{{
			Type:          IssueTimeZone,
			Severity:      SeverityError,
			Message:       "Incorrect time zone setting",
			Description:   description,
			CurrentValue:  current,
			ExpectedValue: p.TimeZone,
		}}
	default:
		return nil
	}
}

// checkCurrentSource validates the live content source. Binary outcome:
// anything other than the preferred app is at best a warning, never info.
// The default-source check below uses a softer grading.
func checkCurrentSource(device *wave.DeviceSnapshot, p Policy) []Issue {
	description := fmt.Sprintf("Content source should be the %s app, or %s as fallback", p.PreferredApp, p.AcceptableSource)
	either := fmt.Sprintf("%s or %s", p.PreferredApp, p.AcceptableSource)

	var current *wave.ContentSource
	if device.ContentSource != nil && device.ContentSource.Current != nil {
		current = device.ContentSource.Current.Reported
	}
	if current == nil || current.Value() == "" {
		return []Issue{{
			Type:          IssueContentSource,
			Severity:      SeverityError,
			Message:       "No content source configured",
			Description:   description,
			CurrentValue:  "Unknown",
			ExpectedValue: either,
		}}
	}

	preferred := current.ApplicationID == p.PreferredApp
	acceptable := current.Source == p.AcceptableSource
	switch {
	case preferred:
		return nil
	case acceptable:
		return []Issue{{
			Type:          IssueContentSource,
			Severity:      SeverityWarning,
			Message:       fmt.Sprintf("Content source using %s instead of preferred app", p.AcceptableSource),
			Description:   "Consider switching to the preferred app for better content management",
			CurrentValue:  current.Source,
			ExpectedValue: p.PreferredApp,
		}}
	default:
		return []Issue{{
			Type:          IssueContentSource,
			Severity:      SeverityError,
			Message:       "Content source not using approved configuration",
			Description:   description,
			CurrentValue:  current.Value(),
			ExpectedValue: either,
		}}
	}
}

// checkDefaultSource validates the fallback content source with a softer,
// three-tier grading (warning / info / ok) than the current-source check.
func checkDefaultSource(device *wave.DeviceSnapshot, p Policy) []Issue {
	graded := fmt.Sprintf("%s (preferred) or %s (acceptable)", p.PreferredApp, p.AcceptableSource)

	var slot *wave.ContentSourceSlot
	if device.ContentSource != nil {
		slot = device.ContentSource.Default
	}
	value := slot.Effective()
	if value == nil || value.Value() == "" {
		return []Issue{{
			Type:          IssueDefaultContentSource,
			Severity:      SeverityWarning,
			Message:       "No default content source configured",
			Description:   "Default content source should be configured as fallback when apps are not running",
			CurrentValue:  "Not configured",
			ExpectedValue: graded,
		}}
	}

	preferred := value.ApplicationID == p.PreferredApp
	acceptable := value.Source == p.AcceptableSource
	switch {
	case preferred:
		return nil
	case acceptable:
		return []Issue{{
			Type:          IssueDefaultContentSource,
			Severity:      SeverityInfo,
			Message:       fmt.Sprintf("Default content source using %s instead of preferred app", p.AcceptableSource),
			Description:   "Consider switching the default to the preferred app for better consistency",
			CurrentValue:  value.Source,
			ExpectedValue: p.PreferredApp,
		}}
	default:
		return []Issue{{
			Type:          IssueDefaultContentSource,
			Severity:      SeverityWarning,
			Message:       "Default content source not using preferred app or acceptable fallback",
			Description:   fmt.Sprintf("Default content source should preferably be %s or %s as fallback", p.PreferredApp, p.AcceptableSource),
			CurrentValue:  value.Value(),
			ExpectedValue: graded,
		}}
	}
}

func checkSignalDetection(device *wave.DeviceSnapshot) []Issue {
	var signal *bool
	if device.PowerSettings.Reported != nil {
		signal = device.PowerSettings.Reported.SignalDetection
	}
	// false, null, and absent are all compliant.
	if signal == nil || !*signal {
		return nil
	}
	return []Issue{{
		Type:          IssuePowerSettings,
		Severity:      SeverityWarning,
		Message:       "Signal detection should be disabled or not set",
		Description:   "Signal detection interferes with scheduled power management",
		CurrentValue:  "true",
		ExpectedValue: "false or not set",
	}}
}

func checkPowerState(device *wave.DeviceSnapshot, p Policy) []Issue {
	reported := device.ReportedPower()
	switch {
	case reported == "STANDBY":
		return []Issue{{
			Type:          IssuePowerSchedule,
			Severity:      SeverityError,
			Message:       "Device in STANDBY mode - critical issue",
			Description:   "Device in STANDBY will not display content properly",
			CurrentValue:  reported,
			ExpectedValue: p.ExpectedPower,
		}}
	case reported != p.ExpectedPower:
		current := reported
		if current == "" {
			current = "Not set"
		}
		return []Issue{{
			Type:          IssuePowerSchedule,
			Severity:      SeverityWarning,
			Message:       "Device power state not optimal",
			Description:   fmt.Sprintf("Device should be in %s state", p.ExpectedPower),
			CurrentValue:  current,
			ExpectedValue: p.ExpectedPower,
		}}
	default:
		return nil
	}
}

func checkRecommendedSettings(device *wave.DeviceSnapshot) []Issue {
	reported := device.RecommendedSettings.Reported
	if reported == nil {
		return nil
	}

	var issues []Issue
	if reported.Compliant != nil && !*reported.Compliant {
		issues = append(issues, Issue{
			Type:          IssueRecommendedSettings,
			Severity:      SeverityError,
			Message:       "Device has recommended settings violations",
			Description:   "Device configuration does not meet recommended standards",
			CurrentValue:  "Non-compliant",
			ExpectedValue: "Compliant with recommended settings",
		})
	}
	for _, warning := range reported.Warnings {
		severity := SeverityWarning
		if warning.Severity == "HIGH" {
			severity = SeverityError
		}
		issues = append(issues, Issue{
			Type:          IssueRecommendedSettingsWarning,
			Severity:      severity,
			Message:       fmt.Sprintf("Recommended Settings Warning: %s", warning.Code),
			Description:   warning.Description,
			CurrentValue:  "Configuration issue detected",
			ExpectedValue: "Resolve recommended settings warning",
		})
	}
	return issues
}
