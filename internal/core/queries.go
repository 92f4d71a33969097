package core

import (
	"strings"
	"time"

	"crmcore/pkg/domain"
)

// Leads returns all leads in insertion order.
func (s *Service) Leads() []Lead {
	return s.store.ListLeads()
}

// Users returns all users in insertion order.
func (s *Service) Users() []User {
	return s.store.ListUsers()
}

// GetLead returns a single lead by id.
func (s *Service) GetLead(id int64) (Lead, bool) {
	return s.store.GetLead(id)
}

// GetUser returns a single user by id.
func (s *Service) GetUser(id int64) (User, bool) {
	return s.store.GetUser(id)
}

// ActivityLog returns the activity log, newest first.
func (s *Service) ActivityLog() []ActivityEntry {
	return s.store.ListActivity()
}

// LeadsByStatus returns leads whose status is in the given set, preserving
// insertion order. An empty set returns all leads.
func (s *Service) LeadsByStatus(statuses ...LeadStatus) []Lead {
	all := s.store.ListLeads()
	if len(statuses) == 0 {
		return all
	}
	wanted := toSet(statuses...)
	filtered := make([]Lead, 0, len(all))
	for _, lead := range all {
		if _, ok := wanted[lead.Status]; ok {
			filtered = append(filtered, lead)
		}
	}
	return filtered
}

// UsersByRole returns users holding the given role. RoleAll (or the empty
// string) matches every role.
func (s *Service) UsersByRole(role Role) []User {
	all := s.store.ListUsers()
	if role == domain.RoleAll || role == "" {
		return all
	}
	filtered := make([]User, 0, len(all))
	for _, user := range all {
		if user.Role == role {
			filtered = append(filtered, user)
		}
	}
	return filtered
}

// SearchLeads returns leads whose name, email, company, creator, or assignee
// contains the term, compared case-insensitively. A blank term returns all
// leads.
func (s *Service) SearchLeads(term string) []Lead {
	all := s.store.ListLeads()
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return all
	}
	filtered := make([]Lead, 0, len(all))
	for _, lead := range all {
		if containsFold(lead.Name, term) ||
			containsFold(lead.Email, term) ||
			containsFold(lead.Company, term) ||
			containsFold(lead.CreatedBy, term) ||
			containsFold(lead.AssignedTo, term) {
			filtered = append(filtered, lead)
		}
	}
	return filtered
}

func containsFold(haystack, lowered string) bool {
	return strings.Contains(strings.ToLower(haystack), lowered)
}

// ConvertedLeadsInMonth returns leads converted during the given calendar
// month, judged by their last-modified timestamp in UTC.
func (s *Service) ConvertedLeadsInMonth(year int, month time.Month) []Lead {
	var matched []Lead
	for _, lead := range s.store.ListLeads() {
		if lead.Status != StatusConverted {
			continue
		}
		at := lead.UpdatedAt.UTC()
		if at.Year() == year && at.Month() == month {
			matched = append(matched, lead)
		}
	}
	return matched
}

// FollowUpAging buckets leads currently in Follow-up by how long they have
// sat there, measured in whole days since last modification.
type FollowUpAging struct {
	// Overdue holds leads untouched for more than seven days.
	Overdue []Lead `json:"overdue"`
	// DueSoon holds leads untouched for three to seven days.
	DueSoon []Lead `json:"due_soon"`
	// Recent holds leads touched within the last three days.
	Recent []Lead `json:"recent"`
}

// FollowUpAging reports the follow-up queue grouped by staleness.
func (s *Service) FollowUpAging() FollowUpAging {
	now := s.clock.Now()
	var aging FollowUpAging
	for _, lead := range s.store.ListLeads() {
		if lead.Status != StatusFollowUp {
			continue
		}
		days := int(now.Sub(lead.UpdatedAt).Hours() / 24)
		switch {
		case days > 7:
			aging.Overdue = append(aging.Overdue, lead)
		case days >= 3:
			aging.DueSoon = append(aging.DueSoon, lead)
		default:
			aging.Recent = append(aging.Recent, lead)
		}
	}
	return aging
}

// PipelineStats summarizes the pipeline for dashboards.
type PipelineStats struct {
	TotalLeads int `json:"total_leads"`
	// StatusCounts has an entry for every pipeline status, zero-valued when
	// no lead holds it.
	StatusCounts map[LeadStatus]int `json:"status_counts"`
	// ConversionRate is the percentage of all leads that reached Converted.
	// Zero when there are no leads.
	ConversionRate float64 `json:"conversion_rate"`
	// OpenQuoteValue sums quote amounts of leads in Quotation and Follow-up.
	OpenQuoteValue float64 `json:"open_quote_value"`
	// ConvertedRevenue sums quote amounts of Converted leads.
	ConvertedRevenue float64 `json:"converted_revenue"`
}

// PipelineStats computes the dashboard summary over all leads.
func (s *Service) PipelineStats() PipelineStats {
	stats := PipelineStats{StatusCounts: make(map[LeadStatus]int, len(domain.LeadStatuses()))}
	for _, status := range domain.LeadStatuses() {
		stats.StatusCounts[status] = 0
	}
	for _, lead := range s.store.ListLeads() {
		stats.TotalLeads++
		stats.StatusCounts[lead.Status]++
		if lead.QuoteAmount == nil {
			continue
		}
		switch lead.Status {
		case StatusQuotation, StatusFollowUp:
			stats.OpenQuoteValue += *lead.QuoteAmount
		case StatusConverted:
			stats.ConvertedRevenue += *lead.QuoteAmount
		}
	}
	if stats.TotalLeads > 0 {
		stats.ConversionRate = float64(stats.StatusCounts[StatusConverted]) / float64(stats.TotalLeads) * 100
	}
	return stats
}

// ActivityFilter narrows FilterActivity results. Zero-valued fields match
// everything.
type ActivityFilter struct {
	// Type restricts entries to a single activity type.
	Type ActivityType
	// Actor restricts entries to those performed by the named user.
	Actor string
	// Search matches case-insensitively against description and actor name.
	Search string
	// LeadID restricts entries to those attached to the given lead.
	LeadID *int64
}

// FilterActivity returns activity entries matching the filter, newest first.
func (s *Service) FilterActivity(filter ActivityFilter) []ActivityEntry {
	all := s.store.ListActivity()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	filtered := make([]ActivityEntry, 0, len(all))
	for _, entry := range all {
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.Actor != "" && !strings.EqualFold(entry.Actor, filter.Actor) {
			continue
		}
		if filter.LeadID != nil && (entry.LeadID == nil || *entry.LeadID != *filter.LeadID) {
			continue
		}
		if search != "" && !containsFold(entry.Description, search) && !containsFold(entry.Actor, search) {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}
