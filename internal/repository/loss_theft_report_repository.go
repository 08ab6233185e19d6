package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/cultivation-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LossReportFilters narrows loss/theft report listings
type LossReportFilters struct {
	FacilityID          *uuid.UUID
	InvestigationStatus domain.InvestigationStatus
	UrgentOnly          bool
}

type LossTheftReportRepository struct {
	db *gorm.DB
}

func NewLossTheftReportRepository(db *gorm.DB) *LossTheftReportRepository {
	return &LossTheftReportRepository{db: db}
}

func (r *LossTheftReportRepository) Create(ctx context.Context, report *domain.LossTheftReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *LossTheftReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.LossTheftReport, error) {
	var report domain.LossTheftReport
	if err := scoped(ctx, r.db, &domain.LossTheftReport{}).Where("id = ?", id).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// GetForUpdate reads a report holding a row lock until the transaction ends
func (r *LossTheftReportRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.LossTheftReport, error) {
	var report domain.LossTheftReport
	err := scoped(ctx, r.db, &domain.LossTheftReport{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *LossTheftReportRepository) List(ctx context.Context, filters LossReportFilters, page Pagination) ([]domain.LossTheftReport, int64, error) {
	var reports []domain.LossTheftReport
	var total int64

	query := scoped(ctx, r.db, &domain.LossTheftReport{})
	if filters.FacilityID != nil {
		query = query.Where("facility_id = ?", *filters.FacilityID)
	}
	if filters.InvestigationStatus != "" {
		query = query.Where("investigation_status = ?", filters.InvestigationStatus)
	}
	if filters.UrgentOnly {
		query = query.Where("urgent = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	err := query.
		Order("incident_date DESC, id ASC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&reports).Error
	return reports, total, err
}

// Save writes every field of a report
func (r *LossTheftReportRepository) Save(ctx context.Context, report *domain.LossTheftReport) error {
	return ApplyTenantFilter(ctx, r.db.WithContext(ctx)).Save(report).Error
}

// ListForExport returns reports whose incident date lies in [start, end]
func (r *LossTheftReportRepository) ListForExport(ctx context.Context, start, end *time.Time) ([]domain.LossTheftReport, error) {
	var reports []domain.LossTheftReport
	query := applyRange(scoped(ctx, r.db, &domain.LossTheftReport{}), "incident_date", start, end)
	err := query.Order("incident_date ASC, id ASC").Find(&reports).Error
	return reports, err
}
