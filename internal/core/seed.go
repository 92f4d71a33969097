package core

import (
	"context"
	"fmt"
	"time"

	"crmcore/pkg/domain"
)

// SeedDemoData populates an empty store with a small demo dataset through the
// regular service operations, so activity entries and counters come out the
// same as if the records had been entered by hand. Seeding a non-empty store
// is a no-op.
func (s *Service) SeedDemoData(ctx context.Context) error {
	if len(s.Users()) > 0 || len(s.Leads()) > 0 {
		return nil
	}

	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	admin, _, err := s.CreateUser(ctx, CreateUserInput{
		Name:      "Priya Sharma",
		Email:     "priya.sharma@example.com",
		Password:  "changeme",
		Role:      domain.RoleSuperAdmin,
		StartDate: &start,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := s.SetCurrentUser(ctx, admin.ID); err != nil {
		return fmt.Errorf("seed current user: %w", err)
	}

	coordStart := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	if _, _, err := s.CreateUser(ctx, CreateUserInput{
		Name:      "Arun Mehta",
		Email:     "arun.mehta@example.com",
		Password:  "changeme",
		Role:      domain.RoleCoordinator,
		StartDate: &coordStart,
	}); err != nil {
		return fmt.Errorf("seed coordinator: %w", err)
	}

	leads := []CreateLeadInput{
		{Name: "Acme Industries", Email: "contact@acme.example", Company: "Acme Industries", Source: domain.SourceWebsite, Priority: domain.PriorityHigh, AssignedTo: "Arun Mehta"},
		{Name: "Northwind Traders", Email: "sales@northwind.example", Company: "Northwind Traders", Source: domain.SourceReferral, Priority: domain.PriorityMedium, AssignedTo: "Priya Sharma"},
		{Name: "Globex Corp", Email: "info@globex.example", Company: "Globex Corp", Source: domain.SourceTradeShow, Priority: domain.PriorityLow, AssignedTo: "Arun Mehta"},
	}
	created := make([]Lead, 0, len(leads))
	for _, input := range leads {
		lead, _, err := s.CreateLead(ctx, input)
		if err != nil {
			return fmt.Errorf("seed lead %s: %w", input.Name, err)
		}
		created = append(created, lead)
	}

	// Walk the first lead into the quotation stage so dashboards have data.
	if _, _, err := s.UpdateLeadStatus(ctx, created[0].ID, StatusOpportunity, nil, nil); err != nil {
		return fmt.Errorf("seed status: %w", err)
	}
	if _, _, err := s.UpdateLeadStatus(ctx, created[0].ID, StatusEnquiry, nil, nil); err != nil {
		return fmt.Errorf("seed status: %w", err)
	}
	amount := 45000.0
	if _, _, err := s.UpdateLeadStatus(ctx, created[0].ID, StatusQuotation, &amount, nil); err != nil {
		return fmt.Errorf("seed status: %w", err)
	}
	if _, _, err := s.AddNoteToLead(ctx, created[0].ID, "Quotation sent, awaiting sign-off"); err != nil {
		return fmt.Errorf("seed note: %w", err)
	}
	return nil
}
