package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/straye-as/cultivation-api/internal/auth"
	"github.com/straye-as/cultivation-api/internal/cache"
	"github.com/straye-as/cultivation-api/internal/domain"
	"github.com/straye-as/cultivation-api/internal/metrics"
	"github.com/straye-as/cultivation-api/internal/notify"
	"github.com/straye-as/cultivation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LossReportPrefix prefixes loss/theft report numbers: LT-YYYY-NNN
const LossReportPrefix = "LT"

// MutationService is the single write path for batch quantities. Every
// mutation locks its batch, applies one variant and appends exactly one
// traceability event in the same transaction.
type MutationService struct {
	tx         *TxRunner
	authz      auth.Authorizer
	cache      cache.Cache
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	thresholds domain.ReportingThresholds
	logger     *zap.Logger
	now        func() time.Time
}

// NewMutationService creates the mutation kernel
func NewMutationService(
	db *gorm.DB,
	authz auth.Authorizer,
	c cache.Cache,
	notifier notify.Notifier,
	m *metrics.Metrics,
	thresholds domain.ReportingThresholds,
	logger *zap.Logger,
) *MutationService {
	return &MutationService{
		tx:         NewTxRunner(db),
		authz:      authz,
		cache:      c,
		notifier:   notifier,
		metrics:    m,
		thresholds: thresholds,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Apply authorizes, validates and commits a mutation
func (s *MutationService) Apply(ctx context.Context, m domain.BatchMutation) (*domain.MutationResult, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionBatchesMutate); err != nil {
		return nil, err
	}
	return s.apply(ctx, m)
}

// Split moves part of a batch into a new sibling batch
func (s *MutationService) Split(ctx context.Context, m *domain.SplitMutation) (*domain.MutationResult, error) {
	return s.Apply(ctx, m)
}

// Process transforms a batch to its processed quantity and product type
func (s *MutationService) Process(ctx context.Context, m *domain.ProcessMutation) (*domain.MutationResult, error) {
	return s.Apply(ctx, m)
}

// Adjust corrects a batch quantity
func (s *MutationService) Adjust(ctx context.Context, m *domain.AdjustMutation) (*domain.MutationResult, error) {
	return s.Apply(ctx, m)
}

// RegisterEvent records a traceability event. processing and
// inventory_adjustment events are routed to Process and Adjust.
func (s *MutationService) RegisterEvent(ctx context.Context, req *domain.RegisterEventRequest) (*domain.MutationResult, error) {
	if err := s.authz.Authorize(ctx, domain.PermissionEventsWrite); err != nil {
		return nil, err
	}
	m, err := mutationFromRequest(req)
	if err != nil {
		s.metrics.MutationRejected(string(domain.MutationEventOnly))
		return nil, err
	}
	return s.apply(ctx, m)
}

// mutationFromRequest checks the fields every registration needs and picks
// the mutation variant for the event type
func mutationFromRequest(req *domain.RegisterEventRequest) (domain.BatchMutation, error) {
	ve := &ValidationError{}
	if req.EventType == "" {
		ve.Add("eventType", "eventType is required")
	} else if !req.EventType.IsValid() {
		ve.Add("eventType", fmt.Sprintf("Unknown event type %q", req.EventType))
	}
	if req.FacilityID == uuid.Nil {
		ve.Add("facilityId", "facilityId is required")
	}
	if req.AreaID == uuid.Nil {
		ve.Add("areaId", "areaId is required")
	}
	if req.BatchID == nil && req.EventType != domain.EventCultivation {
		ve.Add("batchId", "batchId is required")
	}
	if ve.HasErrors() {
		return nil, ve
	}

	switch req.EventType {
	case domain.EventCreation:
		return nil, NewValidationError("eventType", "creation events are recorded when a batch is created")
	case domain.EventProcessing:
		return &domain.ProcessMutation{
			BatchID:           *req.BatchID,
			ProcessedQuantity: req.ProcessedQuantity,
			Method:            req.Method,
			NewProductType:    req.NewProductType,
			Description:       req.Description,
		}, nil
	case domain.EventInventoryAdjustment:
		return &domain.AdjustMutation{
			BatchID:     *req.BatchID,
			Delta:       req.Quantity,
			Unit:        req.Unit,
			Reason:      req.Reason,
			Description: req.Description,
		}, nil
	}
	m := req.EventOnlyMutation
	return &m, nil
}

// apply commits an already authorized mutation
func (s *MutationService) apply(ctx context.Context, m domain.BatchMutation) (*domain.MutationResult, error) {
	kind := string(m.Kind())
	tenantID, err := auth.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	user, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if err := validateMutation(m); err != nil {
		s.metrics.MutationRejected(kind)
		return nil, err
	}

	var result *domain.MutationResult
	var thresholds domain.ReportingThresholds
	err = s.tx.run(ctx, func(r *ledgerRepos) error {
		var err error
		result, thresholds, err = s.execute(ctx, r, m, tenantID, user.UserID)
		return err
	})
	if err != nil {
		var ve *ValidationError
		var ie *InvariantError
		if errors.As(err, &ve) || errors.As(err, &ie) || errors.Is(err, ErrNotFound) {
			s.metrics.MutationRejected(kind)
			return nil, err
		}
		s.logger.Error("batch mutation failed",
			zap.String("tenantID", tenantID.String()),
			zap.String("kind", kind),
			zap.Error(err))
		return nil, fmt.Errorf("failed to apply %s: %w", kind, err)
	}

	s.afterCommit(ctx, tenantID, result, thresholds)
	return result, nil
}

// execute locks the target batch and applies m using repositories bound to
// the caller's transaction. It returns the reporting thresholds that were
// used so post-commit notifications agree with the stored report.
func (s *MutationService) execute(ctx context.Context, r *ledgerRepos, m domain.BatchMutation, tenantID, userID uuid.UUID) (*domain.MutationResult, domain.ReportingThresholds, error) {
	thresholds := s.thresholds
	var batch *domain.Batch
	if id := m.Target(); id != nil {
		b, err := r.batches.GetForUpdate(ctx, *id)
		if err != nil {
			return nil, thresholds, notFound(err, "batch")
		}
		if b.ArchivedAt != nil {
			return nil, thresholds, invariantf("batch %s is archived", b.ID)
		}
		batch = b
	}

	p := &plan{ctx: ctx, repos: r, tenantID: tenantID, userID: userID, now: s.now(), batch: batch}
	var result *domain.MutationResult
	var err error
	switch mut := m.(type) {
	case *domain.SplitMutation:
		result, err = p.split(mut)
	case *domain.ProcessMutation:
		result, err = p.process(mut)
	case *domain.AdjustMutation:
		result, err = p.adjust(mut)
	case *domain.EventOnlyMutation:
		if mut.EventType == domain.EventLossTheft {
			tenant, terr := r.tenants.GetByID(ctx, tenantID)
			if terr != nil {
				return nil, thresholds, notFound(terr, "tenant")
			}
			thresholds = tenant.ReportingThresholds(s.thresholds)
		}
		result, err = p.eventOnly(mut, thresholds)
	default:
		err = fmt.Errorf("unsupported mutation %T", m)
	}
	return result, thresholds, err
}

// afterCommit runs the side effects of a committed mutation. None of them
// can fail the mutation.
func (s *MutationService) afterCommit(ctx context.Context, tenantID uuid.UUID, result *domain.MutationResult, th domain.ReportingThresholds) {
	if err := s.cache.Invalidate(ctx, tenantID, cache.NamespaceBatches, cache.NamespaceAreas); err != nil {
		s.metrics.CacheFailed()
		s.logger.Warn("cache invalidation failed", zap.String("tenantID", tenantID.String()), zap.Error(err))
	}

	s.metrics.MutationCommitted(string(result.Kind))
	s.metrics.EventRecorded(string(result.Event.EventType))

	s.logger.Info("batch mutation committed",
		zap.String("tenantID", tenantID.String()),
		zap.String("kind", string(result.Kind)),
		zap.String("eventID", result.Event.ID.String()),
		zap.String("eventType", string(result.Event.EventType)))

	if result.Report != nil {
		s.metrics.LossReportFiled(result.Report.Urgent)
		s.notifier.Notify(ctx, lossTheftNotification(result.Report, th))
	}
}

func lossTheftNotification(report *domain.LossTheftReport, th domain.ReportingThresholds) notify.Notification {
	severity := report.NotificationSeverity(th)
	title := fmt.Sprintf("Loss/theft reported: %s", report.ReportNumber)
	if severity == domain.SeverityUrgent {
		title = fmt.Sprintf("URGENT: %s requires Health Canada reporting", report.ReportNumber)
	}
	id := report.ID
	return notify.Notification{
		TenantID: report.TenantID,
		Type:     notify.TypeLossTheft,
		Severity: severity,
		Title:    title,
		Message: fmt.Sprintf("%s of %s %s (estimated value %s) recorded on %s",
			report.IncidentType, report.QuantityLost.String(), report.Unit,
			report.EstimatedValue.StringFixed(2), report.IncidentDate.Format(time.RFC3339)),
		EntityType: "loss_theft_report",
		EntityID:   &id,
	}
}

// plan carries the state of one mutation inside its transaction
type plan struct {
	ctx      context.Context
	repos    *ledgerRepos
	tenantID uuid.UUID
	userID   uuid.UUID
	now      time.Time
	batch    *domain.Batch
}

func (p *plan) recordEvent(e *domain.TraceabilityEvent) error {
	e.TenantID = p.tenantID
	e.UserID = p.userID
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now
	}
	if err := p.repos.events.Create(p.ctx, e); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (p *plan) saveBatch() error {
	if err := p.repos.batches.SaveState(p.ctx, p.batch); err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

func (p *plan) area(id uuid.UUID, field string) (*domain.CultivationArea, error) {
	area, err := p.repos.areas.GetByID(p.ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewValidationError(field, "Cultivation area not found")
	}
	return area, err
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func (p *plan) split(m *domain.SplitMutation) (*domain.MutationResult, error) {
	source := p.batch
	q := *m.Quantity
	if !q.IsPositive() {
		return nil, invariantf("split quantity must be greater than zero")
	}
	if q.GreaterThanOrEqual(source.Quantity) {
		return nil, invariantf("split quantity %s must be less than the batch quantity %s", q, source.Quantity)
	}

	fromArea, err := p.area(source.CultivationAreaID, "batchId")
	if err != nil {
		return nil, err
	}
	toArea, err := p.area(m.DestinationAreaID, "destinationAreaId")
	if err != nil {
		return nil, err
	}

	productType := source.ProductType
	if m.NewProductType != "" {
		productType = m.NewProductType
	}
	child := &domain.Batch{
		TenantID:           p.tenantID,
		FacilityID:         toArea.FacilityID,
		CultivationAreaID:  toArea.ID,
		Name:               m.NewBatchName,
		Quantity:           q,
		Unit:               source.Unit,
		EndType:            source.EndType,
		Variety:            source.Variety,
		ProductType:        productType,
		OriginType:         source.OriginType,
		OriginDetails:      source.OriginDetails,
		RetentionExpiresAt: source.RetentionExpiresAt,
	}

	before := source.Quantity
	source.Quantity = before.Sub(q)
	if err := p.saveBatch(); err != nil {
		return nil, err
	}
	if err := p.repos.batches.Create(p.ctx, child); err != nil {
		return nil, fmt.Errorf("failed to create split batch: %w", err)
	}

	event := &domain.TraceabilityEvent{
		BatchID:        &source.ID,
		EventType:      domain.EventMovement,
		FacilityID:     source.FacilityID,
		AreaID:         source.CultivationAreaID,
		Quantity:       decimalPtr(q),
		Unit:           source.Unit,
		Description:    m.Description,
		FromLocation:   fromArea.Name,
		ToLocation:     toArea.Name,
		NewBatchID:     &child.ID,
		QuantityBefore: decimalPtr(before),
		QuantityAfter:  decimalPtr(source.Quantity),
	}
	if event.Description == "" {
		event.Description = fmt.Sprintf("Split %s %s into %s", q, source.Unit, child.Name)
	}
	if err := p.recordEvent(event); err != nil {
		return nil, err
	}

	edge := &domain.BatchLineage{
		TenantID:      p.tenantID,
		ParentBatchID: source.ID,
		ChildBatchID:  child.ID,
		Relation:      domain.LineageSplit,
		Quantity:      q,
		Unit:          source.Unit,
		EventID:       event.ID,
	}
	if err := p.repos.lineage.Create(p.ctx, edge); err != nil {
		return nil, fmt.Errorf("failed to record lineage: %w", err)
	}

	return &domain.MutationResult{
		Kind:     domain.MutationSplit,
		Batch:    source,
		NewBatch: child,
		Event:    event,
		Lineage:  edge,
	}, nil
}

func (p *plan) process(m *domain.ProcessMutation) (*domain.MutationResult, error) {
	b := p.batch
	processed := *m.ProcessedQuantity
	if !processed.IsPositive() {
		return nil, invariantf("processed quantity must be greater than zero")
	}
	if processed.GreaterThan(b.Quantity) {
		return nil, invariantf("processed quantity %s exceeds the batch quantity %s", processed, b.Quantity)
	}

	before := b.Quantity
	b.Quantity = processed
	b.ProductType = m.NewProductType
	if err := p.saveBatch(); err != nil {
		return nil, err
	}

	event := &domain.TraceabilityEvent{
		BatchID:        &b.ID,
		EventType:      domain.EventProcessing,
		FacilityID:     b.FacilityID,
		AreaID:         b.CultivationAreaID,
		Quantity:       decimalPtr(before.Sub(processed)),
		Unit:           b.Unit,
		Method:         m.Method,
		Description:    m.Description,
		QuantityBefore: decimalPtr(before),
		QuantityAfter:  decimalPtr(processed),
	}
	if err := p.recordEvent(event); err != nil {
		return nil, err
	}
	return &domain.MutationResult{Kind: domain.MutationProcess, Batch: b, Event: event}, nil
}

func (p *plan) adjust(m *domain.AdjustMutation) (*domain.MutationResult, error) {
	b := p.batch
	delta, err := domain.ConvertQuantity(*m.Delta, m.Unit, b.Unit)
	if err != nil {
		return nil, NewValidationError("unit", fmt.Sprintf("Cannot convert %s to the batch unit %s", m.Unit, b.Unit))
	}
	after := b.Quantity.Add(delta)
	if after.IsNegative() {
		return nil, invariantf("adjustment would make the batch quantity negative (%s %s)", after, b.Unit)
	}

	before := b.Quantity
	b.Quantity = after
	if err := p.saveBatch(); err != nil {
		return nil, err
	}

	event := &domain.TraceabilityEvent{
		BatchID:        &b.ID,
		EventType:      domain.EventInventoryAdjustment,
		FacilityID:     b.FacilityID,
		AreaID:         b.CultivationAreaID,
		Quantity:       decimalPtr(delta),
		Unit:           b.Unit,
		Reason:         m.Reason,
		Description:    m.Description,
		QuantityBefore: decimalPtr(before),
		QuantityAfter:  decimalPtr(after),
	}
	if err := p.recordEvent(event); err != nil {
		return nil, err
	}
	return &domain.MutationResult{Kind: domain.MutationAdjust, Batch: b, Event: event}, nil
}

func (p *plan) eventOnly(m *domain.EventOnlyMutation, th domain.ReportingThresholds) (*domain.MutationResult, error) {
	area, err := p.area(m.AreaID, "areaId")
	if err != nil {
		return nil, err
	}
	if area.FacilityID != m.FacilityID {
		return nil, NewValidationError("areaId", "Cultivation area does not belong to the facility")
	}
	b := p.batch
	if b != nil && b.FacilityID != m.FacilityID {
		return nil, NewValidationError("facilityId", "Batch is not located in this facility")
	}

	event := &domain.TraceabilityEvent{
		BatchID:      m.BatchID,
		EventType:    m.EventType,
		FacilityID:   m.FacilityID,
		AreaID:       m.AreaID,
		Quantity:     m.Quantity,
		Unit:         m.Unit,
		Description:  m.Description,
		Reason:       m.Reason,
		Method:       m.Method,
		FromLocation: m.FromLocation,
		ToLocation:   m.ToLocation,
	}
	if m.OccurredAt != nil {
		event.OccurredAt = m.OccurredAt.UTC()
	}

	result := &domain.MutationResult{Kind: domain.MutationEventOnly, Batch: b, Event: event}

	switch {
	case m.EventType.DecrementsBatch():
		amount, err := domain.ConvertQuantity(*m.Quantity, m.Unit, b.Unit)
		if err != nil {
			return nil, NewValidationError("unit", fmt.Sprintf("Cannot convert %s to the batch unit %s", m.Unit, b.Unit))
		}
		after := b.Quantity.Sub(amount)
		if after.IsNegative() {
			return nil, invariantf("%s of %s %s exceeds the batch quantity %s %s", m.EventType, m.Quantity, m.Unit, b.Quantity, b.Unit)
		}
		event.QuantityBefore = decimalPtr(b.Quantity)
		event.QuantityAfter = decimalPtr(after)
		b.Quantity = after
		if err := p.saveBatch(); err != nil {
			return nil, err
		}

	case m.EventType == domain.EventMovement && m.ToAreaID != nil:
		to, err := p.area(*m.ToAreaID, "toAreaId")
		if err != nil {
			return nil, err
		}
		if to.FacilityID != b.FacilityID {
			return nil, NewValidationError("toAreaId", "Batches can only move between areas of their facility")
		}
		if event.FromLocation == "" {
			from, err := p.area(b.CultivationAreaID, "batchId")
			if err != nil {
				return nil, err
			}
			event.FromLocation = from.Name
		}
		b.CultivationAreaID = to.ID
		if err := p.saveBatch(); err != nil {
			return nil, err
		}

	case m.EventType == domain.EventHarvest && m.NewBatchID != nil:
		if *m.NewBatchID == b.ID {
			return nil, NewValidationError("newBatchId", "A batch cannot be harvested into itself")
		}
		child, err := p.repos.batches.GetByID(p.ctx, *m.NewBatchID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewValidationError("newBatchId", "Batch not found")
		}
		if err != nil {
			return nil, err
		}
		event.NewBatchID = &child.ID
	}

	if err := p.recordEvent(event); err != nil {
		return nil, err
	}

	if m.EventType == domain.EventHarvest && event.NewBatchID != nil {
		edge := &domain.BatchLineage{
			TenantID:      p.tenantID,
			ParentBatchID: b.ID,
			ChildBatchID:  *event.NewBatchID,
			Relation:      domain.LineageHarvest,
			Quantity:      *m.Quantity,
			Unit:          m.Unit,
			EventID:       event.ID,
		}
		if err := p.repos.lineage.Create(p.ctx, edge); err != nil {
			return nil, fmt.Errorf("failed to record lineage: %w", err)
		}
		result.Lineage = edge
	}

	if m.EventType == domain.EventLossTheft {
		report, err := p.fileLossReport(m, event, th)
		if err != nil {
			return nil, err
		}
		result.Report = report
	}
	return result, nil
}

// fileLossReport creates the loss/theft report of a loss_theft event
func (p *plan) fileLossReport(m *domain.EventOnlyMutation, event *domain.TraceabilityEvent, th domain.ReportingThresholds) (*domain.LossTheftReport, error) {
	number, err := p.repos.sequences.Next(p.ctx, repository.SequenceKey{
		TenantID: p.tenantID,
		Prefix:   LossReportPrefix,
		Year:     event.OccurredAt.Year(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate report number: %w", err)
	}

	incidentType := m.IncidentType
	if incidentType == "" {
		incidentType = domain.IncidentLoss
	}
	category := m.Category
	if category == "" {
		category = domain.CategoryUnexplained
		if incidentType == domain.IncidentTheft {
			category = domain.CategoryTheftExternal
		}
	}
	value := decimal.Zero
	if m.EstimatedValue != nil {
		value = *m.EstimatedValue
	}
	discovered := p.now
	if m.DiscoveredAt != nil {
		discovered = m.DiscoveredAt.UTC()
	}
	description := m.Description
	if description == "" {
		description = m.Reason
	}

	eventID := event.ID
	report := &domain.LossTheftReport{
		TenantID:            p.tenantID,
		ReportNumber:        number,
		IncidentType:        incidentType,
		Category:            category,
		FacilityID:          event.FacilityID,
		BatchID:             event.BatchID,
		EventID:             &eventID,
		QuantityLost:        *m.Quantity,
		Unit:                m.Unit,
		EstimatedValue:      value,
		IncidentDate:        event.OccurredAt,
		DiscoveredDate:      discovered,
		InvestigationStatus: domain.InvestigationOpen,
		Description:         description,
		ReportedBy:          p.userID,
	}
	report.Escalate(th)
	if err := p.repos.reports.Create(p.ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create loss/theft report: %w", err)
	}
	return report, nil
}
