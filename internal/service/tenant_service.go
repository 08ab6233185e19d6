package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/mapper"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// TenantService manages tenants and resolves tenant references for the CLI
// and scheduled jobs
type TenantService struct {
	tenantRepo *repository.TenantRepository
	thresholds domain.ReportingThresholds
	logger     *zap.Logger
}

// NewTenantService creates a new TenantService
func NewTenantService(db *gorm.DB, thresholds domain.ReportingThresholds, logger *zap.Logger) *TenantService {
	return &TenantService{
		tenantRepo: repository.NewTenantRepository(db),
		thresholds: thresholds,
		logger:     logger,
	}
}

// List returns every tenant to super admins and the caller's own tenant to
// everyone else
func (s *TenantService) List(ctx context.Context) ([]domain.TenantDTO, error) {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !user.IsSuperAdmin() {
		if user.TenantID == nil {
			return []domain.TenantDTO{}, nil
		}
		tenant, err := s.tenantRepo.GetByID(ctx, *user.TenantID)
		if err != nil {
			return nil, notFound(err, "tenant")
		}
		return []domain.TenantDTO{mapper.ToTenantDTO(tenant)}, nil
	}

	tenants, err := s.tenantRepo.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	dtos := make([]domain.TenantDTO, len(tenants))
	for i := range tenants {
		dtos[i] = mapper.ToTenantDTO(&tenants[i])
	}
	return dtos, nil
}

// GetByID returns a tenant the caller may access
func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*domain.TenantDTO, error) {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !user.CanAccessTenant(id) {
		return nil, ErrForbidden
	}
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "tenant")
	}
	dto := mapper.ToTenantDTO(tenant)
	return &dto, nil
}

// Create registers a new tenant. Super admins only.
func (s *TenantService) Create(ctx context.Context, req *domain.CreateTenantRequest) (*domain.TenantDTO, error) {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !user.HasPermission(domain.PermissionTenantsManage) {
		return nil, ErrForbidden
	}

	ve := &ValidationError{}
	validateStruct(req, ve)
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug != "" && !slugPattern.MatchString(slug) {
		ve.Add("slug", "Must contain lowercase letters, digits and single dashes")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.tenantRepo.GetBySlug(ctx, slug); err == nil {
		return nil, NewValidationError("slug", "Slug is already taken")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tenant := &domain.Tenant{
		Name:          req.Name,
		Slug:          slug,
		LicenseHolder: req.LicenseHolder,
		Active:        true,
	}
	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	s.logger.Info("tenant created", zap.String("tenantID", tenant.ID.String()), zap.String("slug", tenant.Slug))

	dto := mapper.ToTenantDTO(tenant)
	return &dto, nil
}

// UpdateThresholds sets or clears the tenant's reporting threshold overrides
func (s *TenantService) UpdateThresholds(ctx context.Context, id uuid.UUID, req *domain.UpdateThresholdsRequest) (*domain.TenantDTO, error) {
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if !user.CanAccessTenant(id) || !user.HasAnyRole(domain.RoleSuperAdmin, domain.RoleTenantAdmin, domain.RoleComplianceOfficer) {
		return nil, ErrForbidden
	}

	ve := &ValidationError{}
	checkThreshold(ve, "lossQuantityThreshold", req.LossQuantityThreshold)
	checkThreshold(ve, "lossUnitsThreshold", req.LossUnitsThreshold)
	checkThreshold(ve, "lossValueThreshold", req.LossValueThreshold)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.tenantRepo.GetByID(ctx, id); err != nil {
		return nil, notFound(err, "tenant")
	}
	if err := s.tenantRepo.UpdateThresholds(ctx, id, *req); err != nil {
		return nil, fmt.Errorf("failed to update thresholds: %w", err)
	}
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToTenantDTO(tenant)
	return &dto, nil
}

func checkThreshold(ve *ValidationError, field string, v *decimal.Decimal) {
	if v != nil && v.IsNegative() {
		ve.Add(field, "Must be greater than or equal to 0")
	}
}

// Thresholds returns the effective reporting thresholds of a tenant
func (s *TenantService) Thresholds(ctx context.Context, id uuid.UUID) (domain.ReportingThresholds, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return s.thresholds, notFound(err, "tenant")
	}
	return tenant.ReportingThresholds(s.thresholds), nil
}

// Resolve finds an active tenant by slug or ID. Unknown or inactive tenants
// yield ErrUnknownTenant.
func (s *TenantService) Resolve(ctx context.Context, ref string) (*domain.Tenant, error) {
	ref = strings.TrimSpace(ref)
	var tenant *domain.Tenant
	var err error
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		tenant, err = s.tenantRepo.GetByID(ctx, id)
	} else {
		tenant, err = s.tenantRepo.GetBySlug(ctx, strings.ToLower(ref))
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, ref)
	}
	if err != nil {
		return nil, err
	}
	if !tenant.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrUnknownTenant, ref)
	}
	return tenant, nil
}

// ListActive returns the tenants scheduled jobs and the CLI iterate over
func (s *TenantService) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	return s.tenantRepo.List(ctx, true)
}
