package domain

import (
	"encoding/json"
	"strings"
)

// CustomField is a Paystack metadata entry shown on the dashboard.
type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        any    `json:"value"`
}

// DonationMetadata holds the fields the service reads back from a transaction's metadata.
type DonationMetadata struct {
	DonationType string
	Campaign     string
	DonorName    string
	Anonymous    bool
}

// ParseMetadata reads donation fields from gateway metadata. Top-level keys win
// over custom_fields. The gateway sends an empty string or 0 when no metadata
// was attached, so anything that is not an object yields defaults.
func ParseMetadata(raw json.RawMessage) DonationMetadata {
	md := DonationMetadata{}

	var obj map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &obj); err != nil {
			obj = nil
		}
	}

	custom := map[string]any{}
	if fields, ok := obj["custom_fields"].([]any); ok {
		for _, f := range fields {
			entry, ok := f.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["variable_name"].(string)
			if name != "" {
				custom[name] = entry["value"]
			}
		}
	}

	lookup := func(key string) string {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
		if v, ok := custom[key].(string); ok && v != "" {
			return v
		}
		return ""
	}

	md.DonationType = lookup("donation_type")
	if md.DonationType == "" {
		md.DonationType = DefaultDonationType
	}
	md.Campaign = lookup("campaign")
	md.DonorName = lookup("donor_name")

	switch v := obj["anonymous"].(type) {
	case bool:
		md.Anonymous = v
	case string:
		md.Anonymous = strings.EqualFold(v, "yes") || strings.EqualFold(v, "true")
	default:
		if s, ok := custom["anonymous"].(string); ok {
			md.Anonymous = strings.EqualFold(s, "yes")
		}
	}

	return md
}

// IsTrackedCampaign reports whether a donation counts toward the tracked campaign total.
func (m DonationMetadata) IsTrackedCampaign(campaignName string) bool {
	return m.DonationType == SponsorshipType || (campaignName != "" && m.Campaign == campaignName)
}
