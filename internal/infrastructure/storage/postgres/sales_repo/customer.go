package sales_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/sales"
	"backoffice/internal/infrastructure/storage/postgres"
)

const customersTable = "sales_customers"

var customerColumns = postgres.ExtractDBColumns[sales.Customer]()

// CustomerRepo implements sales.CustomerRepository.
type CustomerRepo struct {
	db      postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

var _ sales.CustomerRepository = (*CustomerRepo)(nil)

func NewCustomerRepo(db postgres.QuerierProvider) *CustomerRepo {
	return &CustomerRepo{db: db, builder: postgres.Builder()}
}

func (r *CustomerRepo) GetByID(ctx context.Context, customerID id.ID) (*sales.Customer, error) {
	return r.find(ctx, squirrel.Eq{"id": customerID}, customerID.String())
}

func (r *CustomerRepo) FindByPhone(ctx context.Context, phone string) (*sales.Customer, error) {
	return r.find(ctx, squirrel.Eq{"phone": phone}, phone)
}

func (r *CustomerRepo) find(ctx context.Context, where squirrel.Eq, ref string) (*sales.Customer, error) {
	sql, args, err := r.builder.Select(customerColumns...).From(customersTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c sales.Customer
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("customer", ref)
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (r *CustomerRepo) Create(ctx context.Context, c *sales.Customer) error {
	sql, args, err := r.builder.Insert(customersTable).SetMap(postgres.StructToMap(c)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.UniqueViolation(err) != "" {
			return apperror.NewConflict("customer phone already exists").WithDetail("phone", c.Phone).WithCause(err)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}
