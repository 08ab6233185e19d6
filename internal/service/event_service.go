package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"gorm.io/gorm"
)

// EventService reads the traceability ledger. Writes go through
// MutationService.RegisterEvent.
type EventService struct {
	eventRepo *repository.TraceabilityEventRepository
	authz     auth.Authorizer
}

// NewEventService creates a new EventService
func NewEventService(db *gorm.DB, authz auth.Authorizer) *EventService {
	return &EventService{
		eventRepo: repository.NewTraceabilityEventRepository(db),
		authz:     authz,
	}
}

func (s *EventService) GetByID(ctx context.Context, id uuid.UUID) (*domain.TraceabilityEventDTO, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionEventsRead); err != nil {
		return nil, err
	}
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "traceability event")
	}
	dto := mapper.ToTraceabilityEventDTO(event)
	return &dto, nil
}

// List returns a page of the ledger, most recent first
func (s *EventService) List(ctx context.Context, filters repository.EventFilters, page repository.Pagination) (*domain.PaginatedResponse, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionEventsRead); err != nil {
		return nil, err
	}
	if filters.EventType != "" && !filters.EventType.IsValid() {
		return nil, NewValidationError("eventType", "Unknown event type")
	}
	if filters.From != nil && filters.To != nil && filters.To.Before(*filters.From) {
		return nil, NewValidationError("to", "Must not be before from")
	}
	page = page.Normalize()
	events, total, err := s.eventRepo.List(ctx, filters, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list traceability events: %w", err)
	}
	return domain.NewPaginatedResponse(mapper.ToTraceabilityEventDTOs(events), total, page.Page, page.PageSize), nil
}
