package sqlcache

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

func TestStore_WithMock(t *testing.T) {
	key := core.CacheKey("users.FindByID:42")
	hash := int64(cache.Hash(key))

	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		run       func(t *testing.T, s *Store)
	}{
		{
			name: "put upserts encoded value",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO cache_entries").
					WithArgs("ns", string(key), hash, []byte(`{"name":"ada"}`)).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			run: func(t *testing.T, s *Store) {
				require.NoError(t, s.Put(key, map[string]any{"name": "ada"}))
			},
		},
		{
			name: "get hit decodes value",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM cache_entries").
					WithArgs("ns", hash, string(key)).
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`"cached"`)))
			},
			run: func(t *testing.T, s *Store) {
				v, ok, err := s.Get(key)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "cached", v)
			},
		},
		{
			name: "get miss",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM cache_entries").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
			},
			run: func(t *testing.T, s *Store) {
				v, ok, err := s.Get(key)
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, v)
			},
		},
		{
			name: "get error is wrapped",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM cache_entries").WillReturnError(assert.AnError)
			},
			run: func(t *testing.T, s *Store) {
				_, _, err := s.Get(key)
				assert.ErrorIs(t, err, assert.AnError)
			},
		},
		{
			name: "clear deletes namespace rows",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("DELETE FROM cache_entries WHERE cache_id").
					WithArgs("ns").
					WillReturnResult(sqlmock.NewResult(0, 3))
			},
			run: func(t *testing.T, s *Store) {
				require.NoError(t, s.Clear())
			},
		},
		{
			name: "size failure reports zero",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT COUNT").WillReturnError(assert.AnError)
			},
			run: func(t *testing.T, s *Store) {
				assert.Equal(t, 0, s.Size())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setupMock(mock)

			s := NewWithDB("ns", db, testutil.NewTestLogger(t))
			tt.run(t, s)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_NotOpened(t *testing.T) {
	s := New("ns", nil)
	assert.Error(t, s.Put("k", 1))
	_, _, err := s.Get("k")
	assert.Error(t, err)
	assert.Error(t, s.Remove("k"))
	assert.Error(t, s.Clear())
	assert.Equal(t, 0, s.Size())
	assert.NoError(t, s.Close())
}

func TestStore_SQLiteRoundTrip(t *testing.T) {
	s := New("users", testutil.NewTestLogger(t))
	require.NoError(t, s.Initialize())
	defer s.Close()

	version, err := MigrationVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, s.Put("a", []any{"x", 1}))
	require.NoError(t, s.Put("b", "second"))
	require.NoError(t, s.Put("b", "overwritten"))
	assert.Equal(t, 2, s.Size())

	v, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{"x", float64(1)}, v)

	v, ok, err = s.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "overwritten", v)

	require.NoError(t, s.Remove("a"))
	_, ok, err = s.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Size())
}

func TestBuilder_SQLiteType(t *testing.T) {
	c, err := cache.Builder{Logger: testutil.NewTestLogger(t)}.Build(core.CacheConfig{
		Namespace:  "orders",
		Type:       "sqlite",
		Blocking:   true,
		Properties: map[string]string{"dsn": ":memory:", "timeout": "250"},
	})
	require.NoError(t, err)

	blocking, ok := c.(*cache.Blocking)
	require.True(t, ok, "expected *cache.Blocking, got %T", c)
	assert.Equal(t, "orders", blocking.ID())

	store, ok := cache.Unwrap(c).(*Store)
	require.True(t, ok)
	assert.Equal(t, ":memory:", store.DSN)
	defer store.Close()

	_, hit, err := c.Get("k")
	require.NoError(t, err)
	require.False(t, hit)
	require.NoError(t, c.Put("k", "v"))

	v, hit, err := c.Get("k")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", v)
}
