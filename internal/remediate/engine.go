// Package remediate drives non-compliant displays back into compliance:
// issue-derived mutations, fallback values, and post-update verification.
package remediate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"signagectl/internal/policy"
	"signagectl/internal/wave"
)

const (
	// Settle intervals: how long to wait after submitting updates before
	// re-querying the device. The escalation pass uses the shorter one.
	defaultSettleInterval     = 5 * time.Second
	defaultEscalationSettle   = 3 * time.Second
	verifyFetchAttempts       = 3
	verifyFetchInitialBackoff = 1 * time.Second
	verifyFetchMaxBackoff     = 5 * time.Second
)

// Options tunes an Engine. Zero values take the defaults above.
type Options struct {
	SettleInterval   time.Duration
	EscalationSettle time.Duration
}

func (o Options) withDefaults() Options {
	if o.SettleInterval <= 0 {
		o.SettleInterval = defaultSettleInterval
	}
	if o.EscalationSettle <= 0 {
		o.EscalationSettle = defaultEscalationSettle
	}
	return o
}

// RequiredUpdates is the set of field corrections to apply to one device.
// Empty strings and nil pointers mean the field is not to be touched.
type RequiredUpdates struct {
	TimeZone                     string `json:"timeZone,omitempty"`
	ContentSource                string `json:"contentSource,omitempty"`
	DefaultContentSource         string `json:"defaultContentSource,omitempty"`
	FallbackDefaultContentSource string `json:"fallbackDefaultContentSource,omitempty"`
	SignalDetection              *bool  `json:"signalDetection,omitempty"`
	PowerState                   string `json:"powerState,omitempty"`
}

// Any reports whether at least one field update is requested.
func (u RequiredUpdates) Any() bool {
	return u.TimeZone != "" || u.ContentSource != "" || u.DefaultContentSource != "" ||
		u.SignalDetection != nil || u.PowerState != ""
}

// FromIssues derives the updates for a device from its issue list. The
// mapping is fixed: one field per distinct issue type present, values taken
// from the fleet policy. Issue types without a mapped field (recommended
// settings) are ignored here; they have their own bulk mutation.
func FromIssues(issues []policy.Issue, p policy.Policy) RequiredUpdates {
	var updates RequiredUpdates
	disabled := false
	for _, issue := range issues {
		switch issue.Type {
		case policy.IssueTimeZone:
			updates.TimeZone = p.TimeZone
		case policy.IssueContentSource:
			updates.ContentSource = p.PreferredApp
		case policy.IssueDefaultContentSource:
			updates.DefaultContentSource = p.PreferredApp
			updates.FallbackDefaultContentSource = p.AcceptableSource
		case policy.IssuePowerSettings:
			updates.SignalDetection = &disabled
		case policy.IssuePowerSchedule:
			updates.PowerState = p.ExpectedPower
		case policy.IssueRecommendedSettings, policy.IssueRecommendedSettingsWarning:
			// Handled by the bulk apply-recommended-settings surface.
		}
	}
	return updates
}

// MutationResult records one submitted field mutation.
type MutationResult struct {
	Type         policy.IssueType `json:"type"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	FallbackUsed string           `json:"fallbackUsed,omitempty"`
}

// FieldVerification compares one updated field's live value to its target.
type FieldVerification struct {
	Type     policy.IssueType `json:"type"`
	Expected string           `json:"expected"`
	Actual   string           `json:"actual"`
	Verified bool             `json:"verified"`
}

// Verification is the post-settle comparison of every updated field.
type Verification struct {
	AllVerified bool                `json:"allVerified"`
	PerField    []FieldVerification `json:"perField"`
	Error       string              `json:"error,omitempty"`
}

// Outcome is the terminal result of remediating one device. Partial
// application is a valid terminal state: each field carries its own
// mutation and verification results.
type Outcome struct {
	DeviceID        string           `json:"deviceId"`
	MutationResults []MutationResult `json:"mutationResults"`
	Verification    Verification     `json:"verification"`
	Success         bool             `json:"success"`
	FallbackUsed    string           `json:"fallbackUsed,omitempty"`
}

// Engine applies and verifies device corrections through the gateway.
type Engine struct {
	gateway wave.Gateway
	policy  policy.Policy
	opts    Options
}

// New returns an Engine bound to the given gateway and fleet policy.
func New(gateway wave.Gateway, p policy.Policy, opts Options) *Engine {
	return &Engine{gateway: gateway, policy: p, opts: opts.withDefaults()}
}

// Remediate runs the full update, settle, verify cycle for one device. If
// the default content source targeted the preferred app and failed
// verification, one escalation pass retries the cycle with the fallback
// input source and the shorter settle interval.
func (e *Engine) Remediate(ctx context.Context, deviceID string, updates RequiredUpdates) Outcome {
	start := time.Now()
	log.Printf("[INFO] Remediating device %s", deviceID)

	results := e.applyUpdates(ctx, deviceID, updates)
	if err := sleepCtx(ctx, e.opts.SettleInterval); err != nil {
		return Outcome{
			DeviceID:        deviceID,
			MutationResults: results,
			Verification:    Verification{Error: err.Error()},
		}
	}
	verification := e.verify(ctx, deviceID, updates)

	if e.shouldEscalate(updates, verification) {
		log.Printf("[WARN] Default content source %s failed verification on %s, escalating to %s",
			updates.DefaultContentSource, deviceID, updates.FallbackDefaultContentSource)

		fallbackUpdates := updates
		fallbackUpdates.DefaultContentSource = updates.FallbackDefaultContentSource
		fallbackUpdates.FallbackDefaultContentSource = ""

		results = append(results, e.applyUpdates(ctx, deviceID, RequiredUpdates{
			DefaultContentSource: fallbackUpdates.DefaultContentSource,
		})...)
		if err := sleepCtx(ctx, e.opts.EscalationSettle); err != nil {
			return Outcome{
				DeviceID:        deviceID,
				MutationResults: results,
				Verification:    Verification{Error: err.Error()},
			}
		}
		verification = e.verify(ctx, deviceID, fallbackUpdates)

		outcome := Outcome{
			DeviceID:        deviceID,
			MutationResults: results,
			Verification:    verification,
			Success:         allSucceeded(results) && verification.AllVerified,
			FallbackUsed:    fallbackUpdates.DefaultContentSource,
		}
		log.Printf("[INFO] Remediation of %s finished in %v (success=%v, fallback=%s)",
			deviceID, time.Since(start), outcome.Success, outcome.FallbackUsed)
		return outcome
	}

	outcome := Outcome{
		DeviceID:        deviceID,
		MutationResults: results,
		Verification:    verification,
		Success:         allSucceeded(results) && verification.AllVerified,
	}
	log.Printf("[INFO] Remediation of %s finished in %v (success=%v)", deviceID, time.Since(start), outcome.Success)
	return outcome
}

// RemediateAll processes devices sequentially; one device's failure never
// blocks the rest.
func (e *Engine) RemediateAll(ctx context.Context, requests map[string]RequiredUpdates, order []string) []Outcome {
	outcomes := make([]Outcome, 0, len(order))
	for _, deviceID := range order {
		updates, ok := requests[deviceID]
		if !ok || !updates.Any() {
			continue
		}
		outcomes = append(outcomes, e.Remediate(ctx, deviceID, updates))
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}

func (e *Engine) shouldEscalate(updates RequiredUpdates, verification Verification) bool {
	if updates.DefaultContentSource != e.policy.PreferredApp || updates.FallbackDefaultContentSource == "" {
		return false
	}
	for _, field := range verification.PerField {
		if field.Type == policy.IssueDefaultContentSource && !field.Verified {
			return true
		}
	}
	return false
}

// applyUpdates submits one independent mutation per requested field. A
// failed field is recorded and the remaining fields are still attempted.
func (e *Engine) applyUpdates(ctx context.Context, deviceID string, updates RequiredUpdates) []MutationResult {
	ids := []string{deviceID}
	var results []MutationResult

	if updates.TimeZone != "" {
		results = append(results, mutationResult(policy.IssueTimeZone,
			wave.UpdateTimeZone(ctx, e.gateway, ids, updates.TimeZone)))
	}
	if updates.ContentSource != "" {
		results = append(results, mutationResult(policy.IssueContentSource,
			wave.UpdateAppContentSource(ctx, e.gateway, ids, updates.ContentSource)))
	}
	if updates.DefaultContentSource != "" {
		results = append(results, e.applyDefaultContentSource(ctx, ids, updates)...)
	}
	if updates.SignalDetection != nil {
		results = append(results, mutationResult(policy.IssuePowerSettings,
			wave.UpdateSignalDetection(ctx, e.gateway, ids, *updates.SignalDetection)))
	}
	if updates.PowerState != "" {
		results = append(results, mutationResult(policy.IssuePowerSchedule,
			wave.UpdatePower(ctx, e.gateway, ids, updates.PowerState)))
	}

	return results
}

// applyDefaultContentSource picks the app or input mutation by value shape
// (application ids are reverse-DNS, input sources are bare enum names) and
// retries once with the fallback input source when the primary fails.
func (e *Engine) applyDefaultContentSource(ctx context.Context, ids []string, updates RequiredUpdates) []MutationResult {
	target := updates.DefaultContentSource

	var err error
	if strings.Contains(target, ".") {
		err = wave.UpdateDefaultAppContentSource(ctx, e.gateway, ids, target)
	} else {
		err = wave.UpdateDefaultInputContentSource(ctx, e.gateway, ids, target)
	}
	if err == nil {
		return []MutationResult{{Type: policy.IssueDefaultContentSource, Success: true}}
	}

	primary := MutationResult{
		Type:    policy.IssueDefaultContentSource,
		Success: false,
		Error:   err.Error(),
	}
	fallback := updates.FallbackDefaultContentSource
	if fallback == "" {
		return []MutationResult{primary}
	}

	log.Printf("[WARN] Default content source mutation failed (%v), falling back to %s", err, fallback)
	fbErr := wave.UpdateDefaultInputContentSource(ctx, e.gateway, ids, fallback)
	if fbErr != nil {
		return []MutationResult{primary, {
			Type:    policy.IssueDefaultContentSource,
			Success: false,
			Error:   fbErr.Error(),
		}}
	}
	return []MutationResult{primary, {
		Type:         policy.IssueDefaultContentSource,
		Success:      true,
		FallbackUsed: fallback,
	}}
}

// verify re-fetches the device and compares every updated field's live
// value against its target. The fetch is retried; verification mismatches
// are negative results, not errors.
func (e *Engine) verify(ctx context.Context, deviceID string, updates RequiredUpdates) Verification {
	var device *wave.DeviceSnapshot
	err := retry.Do(func() error {
		d, err := wave.FetchDisplaySnapshot(ctx, e.gateway, deviceID)
		if err != nil {
			return err
		}
		if d == nil {
			return fmt.Errorf("device %s not found", deviceID)
		}
		device = d
		return nil
	}, retry.Attempts(verifyFetchAttempts), retry.Delay(verifyFetchInitialBackoff), retry.MaxDelay(verifyFetchMaxBackoff), retry.Context(ctx))
	if err != nil {
		log.Printf("[ERROR] Verification fetch for %s failed: %v", deviceID, err)
		return Verification{Error: err.Error()}
	}

	verification := Verification{AllVerified: true}
	record := func(fieldType policy.IssueType, expected, actual string, verified bool) {
		verification.PerField = append(verification.PerField, FieldVerification{
			Type:     fieldType,
			Expected: expected,
			Actual:   actual,
			Verified: verified,
		})
		if !verified {
			verification.AllVerified = false
		}
	}

	if updates.TimeZone != "" {
		actual := device.ReportedTimeZone()
		record(policy.IssueTimeZone, updates.TimeZone, orNotSet(actual), actual == updates.TimeZone)
	}

	if updates.ContentSource != "" {
		actual := ""
		if device.ContentSource != nil && device.ContentSource.Current != nil {
			actual = device.ContentSource.Current.Reported.Value()
		}
		record(policy.IssueContentSource, updates.ContentSource, orNotSet(actual), actual == updates.ContentSource)
	}

	if updates.DefaultContentSource != "" {
		actual := ""
		if device.ContentSource != nil {
			actual = device.ContentSource.Default.Effective().Value()
		}
		verified := actual == updates.DefaultContentSource ||
			(updates.FallbackDefaultContentSource != "" && actual == updates.FallbackDefaultContentSource)
		record(policy.IssueDefaultContentSource, updates.DefaultContentSource, orNotSet(actual), verified)
	}

	if updates.SignalDetection != nil {
		actual := "Not Set"
		verified := false
		if device.PowerSettings != nil && device.PowerSettings.Reported != nil && device.PowerSettings.Reported.SignalDetection != nil {
			actual = fmt.Sprintf("%v", *device.PowerSettings.Reported.SignalDetection)
			verified = *device.PowerSettings.Reported.SignalDetection == *updates.SignalDetection
		}
		record(policy.IssuePowerSettings, fmt.Sprintf("%v", *updates.SignalDetection), actual, verified)
	}

	if updates.PowerState != "" {
		actual := ""
		if device.Power != nil {
			if device.Power.Desired != nil {
				actual = *device.Power.Desired
			} else if device.Power.Reported != nil {
				actual = *device.Power.Reported
			}
		}
		record(policy.IssuePowerSchedule, updates.PowerState, orNotSet(actual), actual == updates.PowerState)
	}

	return verification
}

func mutationResult(fieldType policy.IssueType, err error) MutationResult {
	if err != nil {
		return MutationResult{Type: fieldType, Success: false, Error: err.Error()}
	}
	return MutationResult{Type: fieldType, Success: true}
}

func allSucceeded(results []MutationResult) bool {
	failed := make(map[policy.IssueType]bool)
	for _, r := range results {
		if r.Success {
			// A later success (fallback or escalation) supersedes an
			// earlier failure for the same field.
			failed[r.Type] = false
		} else if _, ok := failed[r.Type]; !ok || !failed[r.Type] {
			failed[r.Type] = true
		}
	}
	for _, f := range failed {
		if f {
			return false
		}
	}
	return true
}

func orNotSet(value string) string {
	if value == "" {
		return "Not Set"
	}
	return value
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
