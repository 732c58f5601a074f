//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn))
	// A second run is a no-op.
	require.NoError(t, Migrate(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, NewUserRepository(pool).UpsertUsers(ctx, []user.User{
		{ID: 1, Email: "ann@example.com", FullName: "Ann"},
	}))

	code := "#000000"
	require.NoError(t, NewCatalogRepository(pool).UpsertProducts(ctx, []ProductTree{
		{
			Product: catalog.Product{ID: 1, Name: "Phone", BasePrice: dec("100"), StockQuantity: 5},
			Versions: []VersionTree{
				{
					Version: catalog.Version{ID: 10, Name: "128GB", ExtraPrice: decPtr("20")},
					Colors:  []catalog.Color{{ID: 100, Name: "Black", ColorCode: &code}},
				},
				{Version: catalog.Version{ID: 11, Name: "64GB"}},
			},
		},
		{Product: catalog.Product{ID: 2, Name: "Case", BasePrice: dec("50")}},
	}))
}

func TestPostgres(t *testing.T) {
	pool := setupTestDB(t)
	seed(t, pool)
	ctx := context.Background()

	t.Run("catalog", func(t *testing.T) {
		repo := NewCatalogRepository(pool)

		p, err := repo.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.True(t, dec("100").Equal(p.BasePrice))
		assert.False(t, p.CategoryID.IsSet())

		v, err := repo.GetVersion(ctx, 11)
		require.NoError(t, err)
		assert.Nil(t, v.ExtraPrice)

		c, err := repo.GetColor(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(10), c.VersionID)

		_, err = repo.GetProduct(ctx, 404)
		require.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("users", func(t *testing.T) {
		repo := NewUserRepository(pool)
		ok, err := repo.Exists(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.Exists(ctx, 2)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cart merge", func(t *testing.T) {
		repo := NewCartRepository(pool)
		line := cart.Line{UserID: 1, ProductID: 2, Quantity: 1, ProductName: "Case", UnitPrice: dec("50")}

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Merge(ctx, line)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		lines, err := repo.ListByUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 10, lines[0].Quantity)

		withVersion := line
		withVersion.ProductID = 1
		withVersion.VersionID = catalog.NewOptInt64(11)
		added, err := repo.Merge(ctx, withVersion)
		require.NoError(t, err)

		collide := *added
		collide.ProductID = 2
		collide.VersionID = catalog.OptInt64{}
		require.ErrorIs(t, repo.Update(ctx, collide), cart.ErrDuplicateLine)

		require.ErrorIs(t, repo.Delete(ctx, 99, added.ID), cart.ErrLineNotFound)
		require.NoError(t, repo.Delete(ctx, 1, added.ID))
		require.NoError(t, repo.DeleteByUser(ctx, 1))

		lines, err = repo.ListByUser(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})

	t.Run("orders", func(t *testing.T) {
		repo := NewOrderRepository(pool)
		o := &order.Order{
			UserID:          1,
			OrderDate:       time.Now().UTC().Truncate(time.Microsecond),
			ShippingAddress: "1 Main St",
			TotalPrice:      dec("290"),
			Status:          order.StatusPending,
			PaymentMethod:   order.PaymentMethodNone,
			PaymentStatus:   order.PaymentStatusUnpaid,
			Lines: []order.Line{
				{ProductID: 1, VersionID: catalog.NewOptInt64(10), ProductName: "Phone", Quantity: 2, UnitPrice: dec("120"), LineTotal: dec("240")},
				{ProductID: 2, ProductName: "Case", Quantity: 1, UnitPrice: dec("50"), LineTotal: dec("50")},
			},
		}
		require.NoError(t, repo.Create(ctx, o))
		require.NotZero(t, o.ID)
		keptLine := o.Lines[0].ID

		got, err := repo.Get(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.True(t, dec("290").Equal(got.TotalPrice))
		assert.Equal(t, order.StatusPending, got.Status)

		updated, err := repo.Update(ctx, o.ID, func(o *order.Order) (order.Change, error) {
			o.Lines = o.Lines[:1]
			o.Lines = append(o.Lines, order.Line{ProductID: 2, ProductName: "Case", Quantity: 3, UnitPrice: dec("50"), LineTotal: dec("150")})
			o.TotalPrice = dec("390")
			return order.ChangeHeader | order.ChangeLines, nil
		})
		require.NoError(t, err)
		assert.Equal(t, keptLine, updated.Lines[0].ID)

		got, err = repo.Get(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.Equal(t, keptLine, got.Lines[0].ID)
		assert.Equal(t, 3, got.Lines[1].Quantity)
		assert.True(t, dec("390").Equal(got.TotalPrice))

		_, err = repo.Update(ctx, o.ID, func(o *order.Order) (order.Change, error) {
			o.Status = order.StatusShipped
			return order.ChangeHeader, order.ErrOrderLocked
		})
		require.ErrorIs(t, err, order.ErrOrderLocked)
		got, err = repo.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, got.Status)

		list, err := repo.ListByUser(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Lines, 2)

		require.NoError(t, repo.Delete(ctx, o.ID))
		require.ErrorIs(t, repo.Delete(ctx, o.ID), order.ErrNotFound)
		_, err = repo.Get(ctx, o.ID)
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("concurrent updates serialise", func(t *testing.T) {
		repo := NewOrderRepository(pool)
		o := &order.Order{
			UserID:        1,
			OrderDate:     time.Now().UTC(),
			TotalPrice:    dec("50"),
			Status:        order.StatusPending,
			PaymentMethod: order.PaymentMethodNone,
			PaymentStatus: order.PaymentStatusUnpaid,
			Lines:         []order.Line{{ProductID: 2, ProductName: "Case", Quantity: 1, UnitPrice: dec("50"), LineTotal: dec("50")}},
		}
		require.NoError(t, repo.Create(ctx, o))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			charged int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, o.ID, func(o *order.Order) (order.Change, error) {
					if o.PaymentMethod != order.PaymentMethodNone {
						return order.ChangeNone, nil
					}
					mu.Lock()
					charged++
					mu.Unlock()
					o.PaymentMethod = order.PaymentMethodCOD
					return order.ChangeHeader, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, charged)
	})

	t.Run("seed prunes versions", func(t *testing.T) {
		repo := NewCatalogRepository(pool)
		require.NoError(t, repo.UpsertProducts(ctx, []ProductTree{
			{
				Product:  catalog.Product{ID: 1, Name: "Phone", BasePrice: dec("110")},
				Versions: []VersionTree{{Version: catalog.Version{ID: 10, Name: "128GB"}}},
			},
		}))

		_, err := repo.GetVersion(ctx, 11)
		require.ErrorIs(t, err, catalog.ErrNotFound)
		_, err = repo.GetColor(ctx, 100)
		require.ErrorIs(t, err, catalog.ErrNotFound)
		p, err := repo.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.True(t, dec("110").Equal(p.BasePrice))
	})
}
