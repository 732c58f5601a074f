package catalog

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	products map[int64]*Product
	versions map[int64]*Version
	colors   map[int64]*Color
	err      error
}

func (m *mockRepo) GetProduct(_ context.Context, id int64) (*Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetVersion(_ context.Context, id int64) (*Version, error) {
	v, ok := m.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *mockRepo) GetColor(_ context.Context, id int64) (*Color, error) {
	c, ok := m.colors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newRepo() *mockRepo {
	code := "#000000"
	return &mockRepo{
		products: map[int64]*Product{
			1: {ID: 1, Name: "Phone", BasePrice: dec("100")},
			2: {ID: 2, Name: "Case", BasePrice: dec("50")},
		},
		versions: map[int64]*Version{
			10: {ID: 10, ProductID: 1, Name: "128GB", ExtraPrice: decPtr("20")},
			11: {ID: 11, ProductID: 1, Name: "64GB"},
			20: {ID: 20, ProductID: 2, Name: "Leather", ExtraPrice: decPtr("5")},
		},
		colors: map[int64]*Color{
			100: {ID: 100, VersionID: 10, Name: "Black", ColorCode: &code},
			200: {ID: 200, VersionID: 20, Name: "Brown"},
		},
	}
}

func TestPrice(t *testing.T) {
	p := Product{BasePrice: dec("100")}

	assert.True(t, dec("100").Equal(Price(p, nil)))
	assert.True(t, dec("100").Equal(Price(p, &Version{})))
	assert.True(t, dec("120.50").Equal(Price(p, &Version{ExtraPrice: decPtr("20.50")})))
}

func TestResolve_ProductOnly(t *testing.T) {
	r := NewResolver(newRepo())

	v, err := r.Resolve(context.Background(), Ref{ProductID: 2})
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(v.UnitPrice))
	assert.Nil(t, v.Version)
	assert.Nil(t, v.Color)
	assert.Nil(t, v.VersionName())
}

func TestResolve_FullChain(t *testing.T) {
	r := NewResolver(newRepo())

	v, err := r.Resolve(context.Background(), Ref{
		ProductID: 1,
		VersionID: NewOptInt64(10),
		ColorID:   NewOptInt64(100),
	})
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(v.UnitPrice))
	require.NotNil(t, v.ColorCode())
	assert.Equal(t, "#000000", *v.ColorCode())
	assert.Equal(t, "128GB", *v.VersionName())
	assert.Equal(t, Ref{ProductID: 1, VersionID: NewOptInt64(10), ColorID: NewOptInt64(100)}, v.Ref())
}

func TestResolve_NilExtraPrice(t *testing.T) {
	r := NewResolver(newRepo())

	v, err := r.Resolve(context.Background(), Ref{ProductID: 1, VersionID: NewOptInt64(11)})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(v.UnitPrice))
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name  string
		ref   Ref
		check func(t *testing.T, err error)
	}{
		{
			name: "missing product",
			ref:  Ref{ProductID: 99},
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, EntityProduct, nf.Entity)
				assert.ErrorIs(t, err, ErrNotFound)
			},
		},
		{
			name: "missing version",
			ref:  Ref{ProductID: 1, VersionID: NewOptInt64(99)},
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, EntityVersion, nf.Entity)
			},
		},
		{
			name: "version of another product",
			ref:  Ref{ProductID: 1, VersionID: NewOptInt64(20)},
			check: func(t *testing.T, err error) {
				var vm *VariantMismatchError
				require.ErrorAs(t, err, &vm)
				assert.Equal(t, EntityVersion, vm.Entity)
				assert.Equal(t, int64(1), vm.ParentID)
			},
		},
		{
			name: "color without version",
			ref:  Ref{ProductID: 1, ColorID: NewOptInt64(100)},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrColorWithoutVersion)
			},
		},
		{
			name: "color of another version",
			ref:  Ref{ProductID: 1, VersionID: NewOptInt64(10), ColorID: NewOptInt64(200)},
			check: func(t *testing.T, err error) {
				var vm *VariantMismatchError
				require.ErrorAs(t, err, &vm)
				assert.Equal(t, EntityColor, vm.Entity)
				assert.Contains(t, vm.Error(), "version 10")
			},
		},
		{
			name: "missing color",
			ref:  Ref{ProductID: 1, VersionID: NewOptInt64(10), ColorID: NewOptInt64(999)},
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, EntityColor, nf.Entity)
			},
		},
	}

	r := NewResolver(newRepo())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.ref)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestResolve_StorageError(t *testing.T) {
	repo := newRepo()
	repo.err = errors.New("connection reset")
	r := NewResolver(repo)

	_, err := r.Resolve(context.Background(), Ref{ProductID: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "get product 1")
}

func TestRepair(t *testing.T) {
	r := NewResolver(newRepo())
	ctx := context.Background()

	t.Run("valid chain kept", func(t *testing.T) {
		v, err := r.Repair(ctx, Ref{ProductID: 1, VersionID: NewOptInt64(10), ColorID: NewOptInt64(100)})
		require.NoError(t, err)
		assert.NotNil(t, v.Version)
		assert.NotNil(t, v.Color)
		assert.True(t, dec("120").Equal(v.UnitPrice))
	})

	t.Run("foreign version drops version and color", func(t *testing.T) {
		v, err := r.Repair(ctx, Ref{ProductID: 1, VersionID: NewOptInt64(20), ColorID: NewOptInt64(200)})
		require.NoError(t, err)
		assert.Nil(t, v.Version)
		assert.Nil(t, v.Color)
		assert.Equal(t, Ref{ProductID: 1}, v.Ref())
		assert.True(t, dec("100").Equal(v.UnitPrice))
	})

	t.Run("missing color dropped", func(t *testing.T) {
		v, err := r.Repair(ctx, Ref{ProductID: 1, VersionID: NewOptInt64(10), ColorID: NewOptInt64(999)})
		require.NoError(t, err)
		assert.NotNil(t, v.Version)
		assert.Nil(t, v.Color)
	})

	t.Run("missing product", func(t *testing.T) {
		_, err := r.Repair(ctx, Ref{ProductID: 42})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestOptInt64(t *testing.T) {
	var none OptInt64
	assert.False(t, none.IsSet())
	assert.Nil(t, none.Ptr())
	assert.Equal(t, "none", none.String())
	assert.Equal(t, OptInt64{}, OptInt64FromPtr(nil))

	id := int64(7)
	some := OptInt64FromPtr(&id)
	v, ok := some.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, NewOptInt64(7), some)
	assert.Equal(t, "7", some.String())
}
