package allocation

import "github.com/headline-goat/variant-goat/internal/store"

type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// VisitorContext describes the visitor being evaluated. Empty fields are
// unknown. ReturningVisitor is nil when the caller could not tell.
type VisitorContext struct {
	UserID           string
	DeviceType       DeviceType
	Country          string
	ReturningVisitor *bool
	Segments         []string
}

// Metadata flattens the known context fields for storage on an assignment.
func (c VisitorContext) Metadata() map[string]string {
	m := map[string]string{}
	if c.DeviceType != "" {
		m["device_type"] = string(c.DeviceType)
	}
	if c.Country != "" {
		m["country"] = c.Country
	}
	if c.ReturningVisitor != nil {
		if *c.ReturningVisitor {
			m["returning_visitor"] = "true"
		} else {
			m["returning_visitor"] = "false"
		}
	}
	return m
}

// Matches reports whether ctx satisfies every predicate present in rules.
// A predicate whose context field is unknown fails; absent predicates and nil
// rules match everything. Pages are not checked here, see PageMatches.
func Matches(rules *store.TargetingRules, ctx VisitorContext) bool {
	if rules == nil {
		return true
	}

	if len(rules.Devices) > 0 {
		if ctx.DeviceType == "" || !contains(rules.Devices, string(ctx.DeviceType)) {
			return false
		}
	}

	if len(rules.Countries) > 0 {
		if ctx.Country == "" || !contains(rules.Countries, ctx.Country) {
			return false
		}
	}

	if rules.NewVisitorsOnly {
		if ctx.ReturningVisitor == nil || *ctx.ReturningVisitor {
			return false
		}
	}

	// The visitor needs at least one of the listed segments.
	if len(rules.Segments) > 0 && !overlaps(rules.Segments, ctx.Segments) {
		return false
	}

	return true
}

// PageMatches reports whether an experiment targets pageType. An empty page
// list targets every page.
func PageMatches(rules *store.TargetingRules, pageType string) bool {
	if rules == nil || len(rules.Pages) == 0 {
		return true
	}
	return contains(rules.Pages, pageType)
}

func overlaps(want, have []string) bool {
	for _, s := range have {
		if contains(want, s) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
