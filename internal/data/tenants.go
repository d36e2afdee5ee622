package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opsplane/opsplane-backend/db"
	"github.com/opsplane/opsplane-backend/pkg/schema"
)

var ErrTenantSlugAlreadyExists = errors.New("a tenant with this slug already exists")

// TenantModel manages the global tenant registry. It is the one model that is
// deliberately not tenant-scoped: it feeds the scheduler's per-tenant passes
// and the slug resolution endpoint.
type TenantModel struct {
	dbConnectionPool db.DBConnectionPool
}

func (m *TenantModel) GetAll(ctx context.Context) ([]schema.Tenant, error) {
	const query = `
		SELECT id, slug, status, base_currency, created_at, updated_at
		FROM tenants
		ORDER BY created_at
	`
	tenants := []schema.Tenant{}
	if err := m.dbConnectionPool.SelectContext(ctx, &tenants, query); err != nil {
		return nil, fmt.Errorf("querying all tenants: %w", err)
	}
	return tenants, nil
}

func (m *TenantModel) GetAllActive(ctx context.Context) ([]schema.Tenant, error) {
	const query = `
		SELECT id, slug, status, base_currency, created_at, updated_at
		FROM tenants
		WHERE status = $1
		ORDER BY created_at
	`
	tenants := []schema.Tenant{}
	if err := m.dbConnectionPool.SelectContext(ctx, &tenants, query, schema.TenantStatusActive); err != nil {
		return nil, fmt.Errorf("querying active tenants: %w", err)
	}
	return tenants, nil
}

func (m *TenantModel) GetByID(ctx context.Context, id string) (*schema.Tenant, error) {
	const query = `
		SELECT id, slug, status, base_currency, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	var t schema.Tenant
	err := m.dbConnectionPool.GetContext(ctx, &t, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying tenant ID %s: %w", id, err)
	}
	return &t, nil
}

func (m *TenantModel) GetBySlug(ctx context.Context, slug string) (*schema.Tenant, error) {
	const query = `
		SELECT id, slug, status, base_currency, created_at, updated_at
		FROM tenants
		WHERE slug = $1
	`
	var t schema.Tenant
	err := m.dbConnectionPool.GetContext(ctx, &t, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying tenant slug %s: %w", slug, err)
	}
	return &t, nil
}

func (m *TenantModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, slug, baseCurrency string) (*schema.Tenant, error) {
	if slug == "" {
		return nil, fmt.Errorf("%w: slug", ErrMissingInput)
	}
	if baseCurrency == "" {
		baseCurrency = "USD"
	}

	const query = `
		INSERT INTO tenants (slug, base_currency)
		VALUES ($1, $2)
		RETURNING id, slug, status, base_currency, created_at, updated_at
	`
	var t schema.Tenant
	err := sqlExec.GetContext(ctx, &t, query, slug, baseCurrency)
	if err != nil {
		if IsUniqueViolation(err, "") {
			return nil, ErrTenantSlugAlreadyExists
		}
		return nil, fmt.Errorf("inserting tenant %s: %w", slug, err)
	}
	return &t, nil
}

func (m *TenantModel) UpdateStatus(ctx context.Context, id string, status schema.TenantStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid tenant status %q", ErrMissingInput, status)
	}

	const query = `UPDATE tenants SET status = $1, updated_at = now() WHERE id = $2`
	res, err := m.dbConnectionPool.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating tenant %s status: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
