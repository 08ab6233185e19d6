package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DetectionConfig holds the loss/theft detection heuristics
type DetectionConfig struct {
	HighVarianceThreshold decimal.Decimal
	VariancePendingDays   int
	TheftWindowDays       int
	MultipleLossThreshold int
	TimePatternThreshold  int
}

// AlertSummary is the outcome of one alert check for a tenant
type AlertSummary struct {
	TenantID       uuid.UUID             `json:"tenantId"`
	VarianceAlerts []domain.VarianceAlert `json:"varianceAlerts"`
	TheftPatterns  []domain.TheftPattern  `json:"theftPatterns"`
	Notified       int                    `json:"notified"`
}

// DetectionService derives variance alerts and theft-pattern leads from
// physical counts and the ledger. It never writes.
type DetectionService struct {
	countRepo *repository.PhysicalCountRepository
	eventRepo *repository.TraceabilityEventRepository
	authz     auth.Authorizer
	notifier  notify.Notifier
	cfg       DetectionConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewDetectionService creates a new DetectionService
func NewDetectionService(db *gorm.DB, authz auth.Authorizer, notifier notify.Notifier, cfg DetectionConfig, logger *zap.Logger) *DetectionService {
	return &DetectionService{
		countRepo: repository.NewPhysicalCountRepository(db),
		eventRepo: repository.NewTraceabilityEventRepository(db),
		authz:     authz,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// VarianceAlerts lists unresolved counts with a discrepancy, worst first
func (s *DetectionService) VarianceAlerts(ctx context.Context) ([]domain.VarianceAlert, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return nil, err
	}
	counts, err := s.countRepo.ListUnresolvedWithVariance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending counts: %w", err)
	}
	return buildVarianceAlerts(counts, s.cfg, s.now()), nil
}

// buildVarianceAlerts scores counts by their variance in base units (g, ml or
// units) so a kilogram count and a gram count share one threshold
func buildVarianceAlerts(counts []domain.PhysicalCount, cfg DetectionConfig, now time.Time) []domain.VarianceAlert {
	type scored struct {
		alert     domain.VarianceAlert
		magnitude decimal.Decimal
	}
	ranked := make([]scored, 0, len(counts))
	for _, c := range counts {
		magnitude := domain.Normalize(c.Variance.Abs(), c.Unit)
		if magnitude.IsZero() {
			continue
		}
		days := int(now.Sub(c.CountDate).Hours() / 24)
		if days < 0 {
			days = 0
		}
		severity := domain.SeverityMedium
		if magnitude.GreaterThan(cfg.HighVarianceThreshold) || days > cfg.VariancePendingDays {
			severity = domain.SeverityHigh
		}
		alert := domain.VarianceAlert{
			CountID:          c.ID,
			BatchID:          c.BatchID,
			FacilityID:       c.FacilityID,
			ExpectedQuantity: c.ExpectedQuantity,
			CountedQuantity:  c.CountedQuantity,
			Discrepancy:      c.Variance,
			Unit:             c.Unit,
			DaysPending:      days,
			Severity:         severity,
		}
		if c.Batch != nil {
			alert.BatchName = c.Batch.Name
		}
		ranked = append(ranked, scored{alert: alert, magnitude: magnitude})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].alert.Severity != ranked[j].alert.Severity {
			return ranked[i].alert.Severity == domain.SeverityHigh
		}
		return ranked[i].magnitude.GreaterThan(ranked[j].magnitude)
	})

	alerts := make([]domain.VarianceAlert, len(ranked))
	for i, r := range ranked {
		alerts[i] = r.alert
	}
	return alerts
}

// TheftPatterns looks for clusters of loss_theft events in the rolling window
func (s *DetectionService) TheftPatterns(ctx context.Context) ([]domain.TheftPattern, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionAlertsRead); err != nil {
		return nil, err
	}
	since := s.now().AddDate(0, 0, -s.cfg.TheftWindowDays)
	events, err := s.eventRepo.ListLossTheftSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load loss/theft events: %w", err)
	}
	return detectTheftPatterns(events, s.cfg), nil
}

func detectTheftPatterns(events []domain.TraceabilityEvent, cfg DetectionConfig) []domain.TheftPattern {
	byFacility := make(map[uuid.UUID][]uuid.UUID)
	var facilities []uuid.UUID
	byHour := make(map[int][]uuid.UUID)
	for _, e := range events {
		if _, seen := byFacility[e.FacilityID]; !seen {
			facilities = append(facilities, e.FacilityID)
		}
		byFacility[e.FacilityID] = append(byFacility[e.FacilityID], e.ID)
		hour := e.OccurredAt.UTC().Hour()
		byHour[hour] = append(byHour[hour], e.ID)
	}

	var patterns []domain.TheftPattern
	for _, facilityID := range facilities {
		ids := byFacility[facilityID]
		if len(ids) < cfg.MultipleLossThreshold {
			continue
		}
		fid := facilityID
		patterns = append(patterns, domain.TheftPattern{
			Type:        domain.PatternMultipleLosses,
			FacilityID:  &fid,
			Incidents:   len(ids),
			WindowDays:  cfg.TheftWindowDays,
			EventIDs:    ids,
			Description: fmt.Sprintf("%d loss/theft incidents at one facility in %d days", len(ids), cfg.TheftWindowDays),
		})
	}
	for hour := 0; hour < 24; hour++ {
		ids := byHour[hour]
		if len(ids) < cfg.TimePatternThreshold {
			continue
		}
		h := hour
		patterns = append(patterns, domain.TheftPattern{
			Type:        domain.PatternTimeCluster,
			Hour:        &h,
			Incidents:   len(ids),
			WindowDays:  cfg.TheftWindowDays,
			EventIDs:    ids,
			Description: fmt.Sprintf("%d loss/theft incidents between %02d:00 and %02d:59 UTC", len(ids), hour, hour),
		})
	}
	return patterns
}

// CheckAlerts computes the alerts of the tenant in ctx and, when notify is
// set, sends one notification per alert
func (s *DetectionService) CheckAlerts(ctx context.Context, notifyUsers bool) (*AlertSummary, error) {
	tenantID, err := auth.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	alerts, err := s.VarianceAlerts(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := s.TheftPatterns(ctx)
	if err != nil {
		return nil, err
	}

	summary := &AlertSummary{TenantID: tenantID, VarianceAlerts: alerts, TheftPatterns: patterns}
	if !notifyUsers {
		return summary, nil
	}

	for _, a := range alerts {
		id := a.CountID
		s.notifier.Notify(ctx, notify.Notification{
			TenantID:   tenantID,
			Type:       notify.TypeVarianceAlert,
			Severity:   a.Severity,
			Title:      fmt.Sprintf("Inventory variance on %s", a.BatchName),
			Message:    fmt.Sprintf("Counted %s %s, expected %s %s (pending %d days)", a.CountedQuantity, a.Unit, a.ExpectedQuantity, a.Unit, a.DaysPending),
			EntityType: "physical_count",
			EntityID:   &id,
		})
		summary.Notified++
	}
	for _, p := range patterns {
		n := notify.Notification{
			TenantID: tenantID,
			Type:     notify.TypeTheftPattern,
			Severity: domain.SeverityHigh,
			Title:    "Possible theft pattern detected",
			Message:  p.Description,
		}
		if p.FacilityID != nil {
			n.EntityType = "facility"
			n.EntityID = p.FacilityID
		}
		s.notifier.Notify(ctx, n)
		summary.Notified++
	}

	s.logger.Info("alert check completed",
		zap.String("tenantID", tenantID.String()),
		zap.Int("varianceAlerts", len(alerts)),
		zap.Int("theftPatterns", len(patterns)),
		zap.Int("notified", summary.Notified))
	return summary, nil
}
