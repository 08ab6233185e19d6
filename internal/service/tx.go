package service

import (
	"context"

	"github.com/straye-as/cultivation-api/internal/repository"
	"gorm.io/gorm"
)

// ledgerRepos are the repositories a ledger write touches, bound to one
// transaction
type ledgerRepos struct {
	tx        *gorm.DB
	tenants   *repository.TenantRepository
	facility  *repository.FacilityRepository
	batches   *repository.BatchRepository
	areas     *repository.CultivationAreaRepository
	events    *repository.TraceabilityEventRepository
	lineage   *repository.LineageRepository
	reports   *repository.LossTheftReportRepository
	counts    *repository.PhysicalCountRepository
	retention *repository.RetentionPolicyRepository
	sequences *repository.NumberSequenceRepository
}

// TxRunner runs callbacks inside one database transaction with repositories
// bound to it. Only the bound repositories may be used inside fn.
type TxRunner struct {
	db *gorm.DB
}

// NewTxRunner creates a runner on db
func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) run(ctx context.Context, fn func(repos *ledgerRepos) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerRepos{
			tx:        tx,
			tenants:   repository.NewTenantRepository(tx),
			facility:  repository.NewFacilityRepository(tx),
			batches:   repository.NewBatchRepository(tx),
			areas:     repository.NewCultivationAreaRepository(tx),
			events:    repository.NewTraceabilityEventRepository(tx),
			lineage:   repository.NewLineageRepository(tx),
			reports:   repository.NewLossTheftReportRepository(tx),
			counts:    repository.NewPhysicalCountRepository(tx),
			retention: repository.NewRetentionPolicyRepository(tx),
			sequences: repository.NewNumberSequenceRepository(tx),
		})
	})
}
