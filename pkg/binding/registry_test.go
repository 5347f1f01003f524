package binding

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// ============================================================================
// Fixtures
// ============================================================================

type Mapper interface {
	mapperMarker()
}

type UserMapper interface {
	Mapper
	FindByID(id int64) (any, error)
	FindByName(first, last string) ([]any, error)
	Rename(id int64, name string) (int64, error)
}

type OrderMapper interface {
	Mapper
	Count() (int64, error)
}

type Standalone interface {
	Ping() error
}

type statementMap map[string]*core.Statement

func (m statementMap) Statement(id string) (*core.Statement, bool) {
	s, ok := m[id]
	return s, ok
}

type recordingExecutor struct {
	rows   []any
	n      int64
	err    error
	stmt   *core.Statement
	params []any
}

func (e *recordingExecutor) Query(_ context.Context, stmt *core.Statement, param any) ([]any, error) {
	e.stmt = stmt
	e.params = append(e.params, param)
	return e.rows, e.err
}

func (e *recordingExecutor) Update(_ context.Context, stmt *core.Statement, param any) (int64, error) {
	e.stmt = stmt
	e.params = append(e.params, param)
	return e.n, e.err
}

type scannerFunc func(t reflect.Type) ([]MethodSpec, error)

func (f scannerFunc) Scan(t reflect.Type) ([]MethodSpec, error) { return f(t) }

var (
	userMapperType  = reflect.TypeFor[UserMapper]()
	orderMapperType = reflect.TypeFor[OrderMapper]()
)

func userStatements() statementMap {
	ns := Namespace(userMapperType)
	return statementMap{
		ns + ".FindByID":   {ID: ns + ".FindByID", Kind: core.KindSelect},
		ns + ".FindByName": {ID: ns + ".FindByName", Kind: core.KindSelect},
		ns + ".Rename":     {ID: ns + ".Rename", Kind: core.KindUpdate},
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestNamespace(t *testing.T) {
	assert.Equal(t, "github.com/leapstack-labs/leapmap/pkg/binding.UserMapper", Namespace(userMapperType))
	assert.Equal(t, "int", Namespace(reflect.TypeFor[int]()))
}

func TestBind_IgnoresNonInterfaces(t *testing.T) {
	r := NewRegistry(nil, testutil.NewTestLogger(t))
	require.NoError(t, r.Bind(reflect.TypeFor[struct{}]()))
	require.NoError(t, r.Bind(nil))
	assert.Empty(t, r.Bound())
}

func TestBind_TwiceIsAlreadyKnown(t *testing.T) {
	r := NewRegistry(userStatements(), testutil.NewTestLogger(t))
	require.NoError(t, r.Bind(userMapperType))

	err := r.Bind(userMapperType)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyKnown)
	assert.Contains(t, err.Error(), "already known")

	assert.True(t, r.IsBound(userMapperType), "original binding stays intact")
	d, err := r.Lookup(userMapperType, &recordingExecutor{})
	require.NoError(t, err)
	assert.Equal(t, userMapperType, d.Type())
}

func TestBind_FailedScanRollsBack(t *testing.T) {
	r := NewRegistry(nil, testutil.NewTestLogger(t))
	scanErr := errors.New("mapper resource is malformed")

	var visibleDuringScan bool
	r.SetScanner(scannerFunc(func(t reflect.Type) ([]MethodSpec, error) {
		visibleDuringScan = r.IsBound(t)
		// Re-entrant binding during the scan must not recurse.
		if err := r.Bind(t); !errors.Is(err, ErrAlreadyKnown) {
			return nil, errors.New("re-entrant bind should report already known")
		}
		return nil, scanErr
	}))

	err := r.Bind(userMapperType)
	require.Error(t, err)
	assert.ErrorIs(t, err, scanErr)
	assert.True(t, visibleDuringScan, "factory must be registered before scanning")
	assert.False(t, r.IsBound(userMapperType))

	_, err = r.Lookup(userMapperType, nil)
	assert.ErrorIs(t, err, ErrNotKnown)
}

func TestLookup_NotKnown(t *testing.T) {
	r := NewRegistry(nil, nil)
	_, err := r.Lookup(orderMapperType, &recordingExecutor{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotKnown)
	assert.Contains(t, err.Error(), "OrderMapper")
}

func TestBindAll_CollectsFailures(t *testing.T) {
	r := NewRegistry(nil, testutil.NewTestLogger(t))
	r.SetScanner(scannerFunc(func(t reflect.Type) ([]MethodSpec, error) {
		if t == userMapperType {
			return nil, errors.New("boom")
		}
		return nil, nil
	}))

	catalog := StaticCatalog{userMapperType, orderMapperType, reflect.TypeFor[Standalone]()}
	err := r.BindAll(catalog, "github.com/leapstack-labs/leapmap/pkg/binding", reflect.TypeFor[Mapper]())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.False(t, r.IsBound(userMapperType))
	assert.True(t, r.IsBound(orderMapperType), "one failure must not stop the others")
	assert.False(t, r.IsBound(reflect.TypeFor[Standalone]()), "filtered by super type")
	assert.Equal(t, []reflect.Type{orderMapperType}, r.Bound())

	require.NoError(t, r.BindAll(catalog, "example.com/elsewhere", nil))
}

// ============================================================================
// Dispatcher
// ============================================================================

func TestDispatcher_Invoke(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(userStatements(), testutil.NewTestLogger(t))
	r.SetScanner(scannerFunc(func(reflect.Type) ([]MethodSpec, error) {
		return []MethodSpec{{Name: "Rename", ParamNames: []string{"id", "name"}}}, nil
	}))
	require.NoError(t, r.Bind(userMapperType))

	exec := &recordingExecutor{rows: []any{"ada"}, n: 1}
	d, err := r.Lookup(userMapperType, exec)
	require.NoError(t, err)

	t.Run("single argument is passed as is", func(t *testing.T) {
		name, found, err := One[string](ctx, d, "FindByID", int64(7))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "ada", name)
		assert.Equal(t, int64(7), exec.params[len(exec.params)-1])
	})

	t.Run("multiple arguments become a param map", func(t *testing.T) {
		_, err := List[string](ctx, d, "FindByName", "Ada", "Lovelace")
		require.NoError(t, err)
		p := exec.params[len(exec.params)-1].(core.ParamMap)
		assert.Equal(t, core.ParamMap{"arg0": "Ada", "arg1": "Lovelace", "param1": "Ada", "param2": "Lovelace"}, p)
	})

	t.Run("declared names", func(t *testing.T) {
		n, err := Exec(ctx, d, "Rename", int64(7), "Ada")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		p := exec.params[len(exec.params)-1].(core.ParamMap)
		v, err := p.Get("name")
		require.NoError(t, err)
		assert.Equal(t, "Ada", v)
		_, err = p.Get("missing")
		assert.ErrorContains(t, err, "available parameters")
	})

	t.Run("unknown method", func(t *testing.T) {
		_, err := d.Invoke(ctx, "DropAll")
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("wrong row type", func(t *testing.T) {
		_, err := List[int](ctx, d, "FindByID", int64(1))
		assert.Error(t, err)
	})

	t.Run("exec on select", func(t *testing.T) {
		_, err := Exec(ctx, d, "FindByID", int64(1))
		assert.Error(t, err)
	})
}

func TestDispatcher_TooManyResults(t *testing.T) {
	r := NewRegistry(userStatements(), nil)
	require.NoError(t, r.Bind(userMapperType))
	d, err := r.Lookup(userMapperType, &recordingExecutor{rows: []any{"a", "b"}})
	require.NoError(t, err)

	_, _, err = One[string](context.Background(), d, "FindByID", int64(1))
	assert.ErrorIs(t, err, ErrTooManyResults)
}

func TestDispatcher_MissingStatement(t *testing.T) {
	r := NewRegistry(statementMap{}, nil)
	require.NoError(t, r.Bind(orderMapperType))
	d, err := r.Lookup(orderMapperType, &recordingExecutor{})
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), "Count")
	require.ErrorIs(t, err, ErrNoStatement)
	assert.Contains(t, err.Error(), Namespace(orderMapperType)+".Count")
}

func TestBind_LookupDuringScanSeesWholeSpecs(t *testing.T) {
	r := NewRegistry(userStatements(), testutil.NewTestLogger(t))

	scanning := make(chan struct{})
	done := make(chan string)
	r.SetScanner(scannerFunc(func(reflect.Type) ([]MethodSpec, error) {
		close(scanning)
		return []MethodSpec{
			{Name: "FindByID", StatementID: "shared.FindByID"},
			{Name: "FindByName", StatementID: "shared.FindByName"},
		}, nil
	}))

	go func() {
		<-scanning
		var last string
		for range 100 {
			d, err := r.Lookup(userMapperType, &recordingExecutor{})
			if err != nil {
				continue
			}
			last = d.factory.StatementID("FindByID")
		}
		done <- last
	}()

	require.NoError(t, r.Bind(userMapperType))
	seen := <-done
	assert.Contains(t, []string{Namespace(userMapperType) + ".FindByID", "shared.FindByID"}, seen)

	d, err := r.Lookup(userMapperType, &recordingExecutor{})
	require.NoError(t, err)
	assert.Equal(t, "shared.FindByID", d.factory.StatementID("FindByID"))
	assert.Equal(t, "shared.FindByName", d.factory.StatementID("FindByName"))
}

func TestDispatcher_StatementIDOverride(t *testing.T) {
	r := NewRegistry(statementMap{"shared.Count": {ID: "shared.Count", Kind: core.KindSelect}}, nil)
	r.SetScanner(scannerFunc(func(reflect.Type) ([]MethodSpec, error) {
		return []MethodSpec{{Name: "Count", StatementID: "shared.Count"}}, nil
	}))
	require.NoError(t, r.Bind(orderMapperType))

	exec := &recordingExecutor{rows: []any{int64(3)}}
	d, err := r.Lookup(orderMapperType, exec)
	require.NoError(t, err)

	n, found, err := One[int64](context.Background(), d, "Count")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "shared.Count", exec.stmt.ID)
	assert.Nil(t, exec.params[0], "no arguments yields a nil parameter")
}
