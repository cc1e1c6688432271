package wave

import (
	"context"
	"fmt"
)

// GraphQL fragments shared by snapshot queries. The content source union is
// expanded inline on both arms so the decoder always sees flat objects.
const contentSourceFields = `
                    reported {
                        ... on InputContentSource { source }
                        ... on AppContentSource { activityList applicationId }
                    }
                    desired {
                        ... on InputContentSource { source }
                        ... on AppContentSource { activityList applicationId }
                    }`

const customersQuery = `
    query Customers {
        organization {
            customers {
                id
                name
                handle
            }
        }
    }`

const sitesQuery = `
    query Sites($handle: String!) {
        customerByHandle(handle: $handle) {
            displays {
                site { id name }
            }
        }
    }`

const displayListQuery = `
    query DisplayList($handle: String!) {
        customerByHandle(handle: $handle) {
            displays {
                id
                alias
                site { id name }
                presence { connected }
            }
        }
    }`

const displaysWithConfigQuery = `
    query DisplaysWithConfig($handle: String!) {
        customerByHandle(handle: $handle) {
            displays {
                id
                alias
                site { id name }
                presence { connected }
                timeZone { reported }
                powerSettings { reported { signalDetection } }
                contentSource {
                    current {` + contentSourceFields + `
                    }
                    default {` + contentSourceFields + `
                    }
                }
                power { reported desired }
                recommendedSettings {
                    reported {
                        recommended
                        warnings { code severity description }
                    }
                }
            }
        }
    }`

const displaySnapshotQuery = `
    query DisplaySnapshot($id: ID!) {
        display(id: $id) {
            id
            alias
            site { id name }
            timeZone { reported }
            powerSettings { reported { signalDetection } }
            contentSource {
                current {` + contentSourceFields + `
                }
                default {` + contentSourceFields + `
                }
            }
            power { reported desired }
        }
    }`

const rebootMutation = `
    mutation Reboot($input: DisplayBulkRebootInput!) {
        displayBulkReboot(input: $input) {
            displays {
                id
                alias
                site { id name }
                power { reported desired }
            }
        }
    }`

const updateTimeZoneMutation = `
    mutation UpdateTimeZone($input: DisplayBulkUpdateTimeZoneInput!) {
        displayBulkUpdateTimeZone(input: $input) {
            displays { id alias }
        }
    }`

const updateAppContentSourceMutation = `
    mutation UpdateAppContentSource($input: DisplayBulkUpdateAppContentSourceInput!) {
        displayBulkUpdateAppContentSource(input: $input) {
            displays { id alias }
        }
    }`

const updateDefaultAppContentSourceMutation = `
    mutation UpdateDefaultAppContentSource($input: DisplayBulkUpdateDefaultAppContentSourceInput!) {
        displayBulkUpdateDefaultAppContentSource(input: $input) {
            displays { id alias }
        }
    }`

const updateDefaultInputContentSourceMutation = `
    mutation UpdateDefaultInputContentSource($input: DisplayBulkUpdateDefaultInputContentSourceInput!) {
        displayBulkUpdateDefaultInputContentSource(input: $input) {
            displays { id alias }
        }
    }`

const updateSignalDetectionMutation = `
    mutation UpdateSignalDetection($input: DisplayBulkUpdateSignalDetectionInput!) {
        displayBulkUpdateSignalDetection(input: $input) {
            displays { id alias }
        }
    }`

const updatePowerMutation = `
    mutation UpdatePower($input: DisplayBulkUpdatePowerInput!) {
        displayBulkUpdatePower(input: $input) {
            displays { id alias }
        }
    }`

const applyRecommendedSettingsMutation = `
    mutation ApplyRecommendedSettings($input: DisplayBulkApplyRecommendedSettingsInput!) {
        displayBulkApplyRecommendedSettings(input: $input) {
            displays {
                id
                alias
                recommendedSettings {
                    reported {
                        recommended
                        warnings { code severity description }
                    }
                }
            }
        }
    }`

type customerDisplays struct {
	Displays []DeviceSnapshot `json:"displays"`
}

type customerByHandleResponse struct {
	CustomerByHandle *customerDisplays `json:"customerByHandle"`
}

// FetchCustomers lists the organization's customers (tenants).
func FetchCustomers(ctx context.Context, gw Gateway) ([]Customer, error) {
	var resp struct {
		Organization *struct {
			Customers []Customer `json:"customers"`
		} `json:"organization"`
	}
	if err := gw.Execute(ctx, Request{Query: customersQuery}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch customers: %w", err)
	}
	if resp.Organization == nil {
		return nil, nil
	}
	return resp.Organization.Customers, nil
}

// FetchSites lists the distinct sites of a customer, deduplicated from its
// display list (the upstream API has no direct site enumeration).
func FetchSites(ctx context.Context, gw Gateway, handle string) ([]Site, error) {
	var resp customerByHandleResponse
	req := Request{Query: sitesQuery, Variables: map[string]any{"handle": handle}}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch sites: %w", err)
	}
	if resp.CustomerByHandle == nil {
		return nil, nil
	}
	seen := make(map[string]bool)
	var sites []Site
	for _, d := range resp.CustomerByHandle.Displays {
		if d.Site == nil || d.Site.ID == "" || seen[d.Site.ID] {
			continue
		}
		seen[d.Site.ID] = true
		sites = append(sites, *d.Site)
	}
	return sites, nil
}

// FetchDisplays lists a customer's displays with identity, site, and
// presence only (no configuration subtrees).
func FetchDisplays(ctx context.Context, gw Gateway, handle string) ([]DeviceSnapshot, error) {
	var resp customerByHandleResponse
	req := Request{Query: displayListQuery, Variables: map[string]any{"handle": handle}}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch displays: %w", err)
	}
	if resp.CustomerByHandle == nil {
		return nil, nil
	}
	return resp.CustomerByHandle.Displays, nil
}

// FetchDisplaysWithConfig fetches the full configuration snapshot of every
// display owned by the customer. Callers filter to the ids they care about;
// the upstream API does not support id filtering at this granularity.
func FetchDisplaysWithConfig(ctx context.Context, gw Gateway, handle string) ([]DeviceSnapshot, error) {
	var resp customerByHandleResponse
	req := Request{Query: displaysWithConfigQuery, Variables: map[string]any{"handle": handle}}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch display configurations: %w", err)
	}
	if resp.CustomerByHandle == nil {
		return nil, nil
	}
	return resp.CustomerByHandle.Displays, nil
}

// FetchDisplaySnapshot fetches one display's configuration snapshot by id.
// Returns nil when the display does not exist.
func FetchDisplaySnapshot(ctx context.Context, gw Gateway, deviceID string) (*DeviceSnapshot, error) {
	var resp struct {
		Display *DeviceSnapshot `json:"display"`
	}
	req := Request{Query: displaySnapshotQuery, Variables: map[string]any{"id": deviceID}}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch display %s: %w", deviceID, err)
	}
	return resp.Display, nil
}

// RebootDisplays issues a bulk reboot for the given display ids and returns
// the affected displays as reported by the upstream.
func RebootDisplays(ctx context.Context, gw Gateway, displayIDs []string) ([]DeviceSnapshot, error) {
	var resp struct {
		DisplayBulkReboot *customerDisplays `json:"displayBulkReboot"`
	}
	req := Request{
		Query:     rebootMutation,
		Variables: map[string]any{"input": map[string]any{"displayIds": displayIDs}},
	}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to reboot displays: %w", err)
	}
	if resp.DisplayBulkReboot == nil {
		return nil, nil
	}
	return resp.DisplayBulkReboot.Displays, nil
}

// UpdateTimeZone sets the time zone on the given displays.
func UpdateTimeZone(ctx context.Context, gw Gateway, displayIDs []string, timeZone string) error {
	req := Request{
		Query: updateTimeZoneMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds": displayIDs,
			"timeZone":   timeZone,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// UpdateAppContentSource sets the current content source to an application.
func UpdateAppContentSource(ctx context.Context, gw Gateway, displayIDs []string, applicationID string) error {
	req := Request{
		Query: updateAppContentSourceMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds":    displayIDs,
			"applicationId": applicationID,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// UpdateDefaultAppContentSource sets the default content source to an
// application.
func UpdateDefaultAppContentSource(ctx context.Context, gw Gateway, displayIDs []string, applicationID string) error {
	req := Request{
		Query: updateDefaultAppContentSourceMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds":    displayIDs,
			"applicationId": applicationID,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// UpdateDefaultInputContentSource sets the default content source to an
// input source (HDMI, CUSTOM, ...).
func UpdateDefaultInputContentSource(ctx context.Context, gw Gateway, displayIDs []string, source string) error {
	req := Request{
		Query: updateDefaultInputContentSourceMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds": displayIDs,
			"source":     source,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// UpdateSignalDetection enables or disables signal detection.
func UpdateSignalDetection(ctx context.Context, gw Gateway, displayIDs []string, enable bool) error {
	req := Request{
		Query: updateSignalDetectionMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds": displayIDs,
			"enable":     enable,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// UpdatePower sets the desired power state ("ON", "STANDBY").
func UpdatePower(ctx context.Context, gw Gateway, displayIDs []string, power string) error {
	req := Request{
		Query: updatePowerMutation,
		Variables: map[string]any{"input": map[string]any{
			"displayIds": displayIDs,
			"power":      power,
		}},
	}
	return gw.Execute(ctx, req, nil)
}

// RecommendedSettingsResult summarizes one display after a bulk
// apply-recommended-settings mutation.
type RecommendedSettingsResult struct {
	ID                string `json:"id"`
	Alias             string `json:"alias"`
	Compliant         bool   `json:"compliant"`
	RemainingWarnings int    `json:"remainingWarnings"`
}

// ApplyRecommendedSettings applies the upstream's recommended settings to
// the given displays and summarizes the resulting compliance per display.
func ApplyRecommendedSettings(ctx context.Context, gw Gateway, displayIDs []string) ([]RecommendedSettingsResult, error) {
	var resp struct {
		DisplayBulkApplyRecommendedSettings *customerDisplays `json:"displayBulkApplyRecommendedSettings"`
	}
	req := Request{
		Query:     applyRecommendedSettingsMutation,
		Variables: map[string]any{"input": map[string]any{"displayIds": displayIDs}},
	}
	if err := gw.Execute(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to apply recommended settings: %w", err)
	}
	if resp.DisplayBulkApplyRecommendedSettings == nil {
		return nil, nil
	}
	results := make([]RecommendedSettingsResult, 0, len(resp.DisplayBulkApplyRecommendedSettings.Displays))
	for _, d := range resp.DisplayBulkApplyRecommendedSettings.Displays {
		r := RecommendedSettingsResult{ID: d.ID, Alias: d.Alias}
		if d.RecommendedSettings != nil && d.RecommendedSettings.Reported != nil {
			rep := d.RecommendedSettings.Reported
			r.Compliant = rep.Compliant != nil && *rep.Compliant
			r.RemainingWarnings = len(rep.Warnings)
		}
		results = append(results, r)
	}
	return results, nil
}
