package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/straye-as/cultivation-api/internal/repository"
	"github.com/straye-as/cultivation-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNumberSequence_Next(t *testing.T) {
	db := testutil.SetupTestDB(t)
	north := testutil.NewFixture(t, db, "north")
	south := testutil.NewFixture(t, db, "south")
	repo := repository.NewNumberSequenceRepository(db)
	ctx := context.Background()

	key := repository.SequenceKey{TenantID: north.Tenant.ID, Prefix: "LT", Year: 2026}
	for _, want := range []string{"LT-2026-001", "LT-2026-002", "LT-2026-003"} {
		got, err := repo.Next(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	t.Run("restarts per year and tenant", func(t *testing.T) {
		got, err := repo.Next(ctx, repository.SequenceKey{TenantID: north.Tenant.ID, Prefix: "LT", Year: 2027})
		require.NoError(t, err)
		assert.Equal(t, "LT-2027-001", got)

		got, err = repo.Next(ctx, repository.SequenceKey{TenantID: south.Tenant.ID, Prefix: "LT", Year: 2026})
		require.NoError(t, err)
		assert.Equal(t, "LT-2026-001", got)
	})

	t.Run("rolled back numbers are reissued", func(t *testing.T) {
		errAbort := errors.New("abort")
		err := db.Transaction(func(tx *gorm.DB) error {
			n, err := repository.NewNumberSequenceRepository(tx).Next(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "LT-2026-004", n)
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		got, err := repo.Next(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "LT-2026-004", got)
	})
}

func TestSequenceKey_Format(t *testing.T) {
	key := repository.SequenceKey{Prefix: "LT", Year: 2025}
	assert.Equal(t, "LT-2025-042", key.Format(42))
	assert.Equal(t, "LT-2025-1234", key.Format(1234))
}
