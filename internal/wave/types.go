// Package wave provides the gateway to the upstream Wave device-management
// GraphQL API and the typed subset of device state the console consumes.
package wave

// Customer is a tenant organization owning sites and displays.
type Customer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// Site is a physical location grouping displays.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Presence reports upstream connectivity for a display.
type Presence struct {
	Connected bool `json:"connected"`
}

// ContentSourceKind discriminates the upstream content source union.
type ContentSourceKind string

const (
	ContentSourceInput   ContentSourceKind = "input"
	ContentSourceApp     ContentSourceKind = "app"
	ContentSourceUnknown ContentSourceKind = "unknown"
)

// ContentSource is one arm of the upstream content source union: either an
// input source (HDMI, CUSTOM, ...) or an installed application. Exactly one
// of Source or ApplicationID is set for a well-formed value.
type ContentSource struct {
	Source        string   `json:"source,omitempty"`
	ApplicationID string   `json:"applicationId,omitempty"`
	ActivityList  []string `json:"activityList,omitempty"`
}

// Kind reports which arm of the union this value carries.
func (c *ContentSource) Kind() ContentSourceKind {
	switch {
	case c == nil:
		return ContentSourceUnknown
	case c.ApplicationID != "":
		return ContentSourceApp
	case c.Source != "":
		return ContentSourceInput
	default:
		return ContentSourceUnknown
	}
}

// Value returns the application id for app sources, the input source name
// otherwise, or "" when the value is absent or empty.
func (c *ContentSource) Value() string {
	if c == nil {
		return ""
	}
	if c.ApplicationID != "" {
		return c.ApplicationID
	}
	return c.Source
}

// ContentSourceSlot holds the reported and desired values of one content
// source slot. Either pointer may be nil when the upstream has no value.
type ContentSourceSlot struct {
	Reported *ContentSource `json:"reported"`
	Desired  *ContentSource `json:"desired"`
}

// Effective returns the desired value when present, else the reported one.
// Returns nil when the slot carries no value at all.
func (s *ContentSourceSlot) Effective() *ContentSource {
	if s == nil {
		return nil
	}
	if s.Desired != nil {
		return s.Desired
	}
	return s.Reported
}

// ContentSourceState groups the current (live) and default (fallback)
// content source slots of a display.
type ContentSourceState struct {
	Current *ContentSourceSlot `json:"current"`
	Default *ContentSourceSlot `json:"default"`
}

// TimeZoneState is the reported time zone of a display; Reported is nil
// when the device has never had one configured.
type TimeZoneState struct {
	Reported *string `json:"reported"`
}

// SignalDetectionState carries the reported signal-detection flag.
// A nil SignalDetection means the setting was never configured.
type SignalDetectionState struct {
	SignalDetection *bool `json:"signalDetection"`
}

// PowerSettings is the power-settings subtree of a display.
type PowerSettings struct {
	Reported *SignalDetectionState `json:"reported"`
}

// PowerState holds the reported/desired power enum ("ON", "STANDBY", ...).
// Nil pointers mean the upstream reported nothing.
type PowerState struct {
	Reported *string `json:"reported"`
	Desired  *string `json:"desired"`
}

// RecommendedWarning is a single upstream recommended-settings warning.
type RecommendedWarning struct {
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// RecommendedReport is the upstream compliance verdict for the
// recommended-settings feature. Compliant is nil when unreported.
type RecommendedReport struct {
	Compliant *bool                `json:"recommended"`
	Warnings  []RecommendedWarning `json:"warnings"`
}

// RecommendedSettings groups the reported and desired recommended-settings
// verdicts.
type RecommendedSettings struct {
	Reported *RecommendedReport `json:"reported"`
	Desired  *RecommendedReport `json:"desired"`
}

// DeviceSnapshot is the subset of remote display state relevant to policy
// checks. Every nested pointer is nil when the upstream omitted the field;
// accessors state their defaults for the absent case.
type DeviceSnapshot struct {
	ID                  string               `json:"id"`
	Alias               string               `json:"alias"`
	Site                *Site                `json:"site"`
	Presence            *Presence            `json:"presence"`
	TimeZone            *TimeZoneState       `json:"timeZone"`
	PowerSettings       *PowerSettings       `json:"powerSettings"`
	ContentSource       *ContentSourceState  `json:"contentSource"`
	Power               *PowerState          `json:"power"`
	RecommendedSettings *RecommendedSettings `json:"recommendedSettings"`
}

// Name returns the display alias, falling back to the device id.
func (d *DeviceSnapshot) Name() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.ID
}

// SiteName returns the owning site's name, or "Unknown Site".
func (d *DeviceSnapshot) SiteName() string {
	if d.Site != nil && d.Site.Name != "" {
		return d.Site.Name
	}
	return "Unknown Site"
}

// Online reports whether the display is currently connected upstream.
func (d *DeviceSnapshot) Online() bool {
	return d.Presence != nil && d.Presence.Connected
}

// ReportedPower returns the reported power state, or "" when absent.
func (d *DeviceSnapshot) ReportedPower() string {
	if d.Power == nil || d.Power.Reported == nil {
		return ""
	}
	return *d.Power.Reported
}

// ReportedTimeZone returns the reported time zone, or "" when absent.
func (d *DeviceSnapshot) ReportedTimeZone() string {
	if d.TimeZone == nil || d.TimeZone.Reported == nil {
		return ""
	}
	return *d.TimeZone.Reported
}
