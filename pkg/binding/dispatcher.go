package binding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

var (
	// ErrUnknownMethod is returned when invoking a method the interface does not declare.
	ErrUnknownMethod = errors.New("binding: interface has no such method")
	// ErrNoStatement is returned when a method's statement does not exist.
	ErrNoStatement = errors.New("binding: invalid bound statement (not found)")
	// ErrTooManyResults is returned by One when more than one row comes back.
	ErrTooManyResults = errors.New("binding: expected one result (or none) but found more")
	// ErrNoExecutor is returned when a dispatcher has no executor.
	ErrNoExecutor = errors.New("binding: no executor")
)

// Factory creates dispatchers for one bound interface.
type Factory struct {
	iface      reflect.Type
	namespace  string
	statements StatementSource
	// specs is replaced whole, never written in place, so lookups may run
	// while a scan is still applying method specs
	specs atomic.Pointer[map[string]MethodSpec]
}

func newFactory(t reflect.Type, statements StatementSource) *Factory {
	f := &Factory{
		iface:      t,
		namespace:  Namespace(t),
		statements: statements,
	}
	f.specs.Store(&map[string]MethodSpec{})
	return f
}

func (f *Factory) apply(specs []MethodSpec) {
	current := *f.specs.Load()
	next := make(map[string]MethodSpec, len(current)+len(specs))
	for name, s := range current {
		next[name] = s
	}
	for _, s := range specs {
		next[s.Name] = s
	}
	f.specs.Store(&next)
}

func (f *Factory) spec(method string) MethodSpec {
	return (*f.specs.Load())[method]
}

// Type returns the bound interface.
func (f *Factory) Type() reflect.Type { return f.iface }

// New returns a dispatcher bound to exec.
func (f *Factory) New(exec core.Executor) *Dispatcher {
	return &Dispatcher{factory: f, exec: exec}
}

// StatementID returns the statement id a method dispatches to.
func (f *Factory) StatementID(method string) string {
	if id := f.spec(method).StatementID; id != "" {
		return id
	}
	return f.namespace + "." + method
}

// Result is the outcome of one invocation.
type Result struct {
	// Kind is the statement kind
	Kind core.StatementKind
	// Rows holds mapped rows of a select
	Rows []any
	// Affected is the row count of an insert, update or delete
	Affected int64
}

// Dispatcher forwards interface method calls to statements.
type Dispatcher struct {
	factory *Factory
	exec    core.Executor
}

// Type returns the bound interface.
func (d *Dispatcher) Type() reflect.Type { return d.factory.iface }

// Statement resolves the statement behind method.
func (d *Dispatcher) Statement(method string) (*core.Statement, error) {
	if _, ok := d.factory.iface.MethodByName(method); !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, d.factory.namespace, method)
	}
	id := d.factory.StatementID(method)
	if d.factory.statements == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoStatement, id)
	}
	stmt, ok := d.factory.statements.Statement(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStatement, id)
	}
	return stmt, nil
}

// Invoke runs the statement behind method with args.
func (d *Dispatcher) Invoke(ctx context.Context, method string, args ...any) (Result, error) {
	stmt, err := d.Statement(method)
	if err != nil {
		return Result{}, err
	}
	if d.exec == nil {
		return Result{}, ErrNoExecutor
	}
	param := d.param(method, args)

	switch stmt.Kind {
	case core.KindSelect:
		rows, err := d.exec.Query(ctx, stmt, param)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", stmt.ID, err)
		}
		return Result{Kind: stmt.Kind, Rows: rows}, nil
	case core.KindInsert, core.KindUpdate, core.KindDelete:
		n, err := d.exec.Update(ctx, stmt, param)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", stmt.ID, err)
		}
		return Result{Kind: stmt.Kind, Affected: n}, nil
	default:
		return Result{}, fmt.Errorf("binding: unknown execution method for %s", stmt.ID)
	}
}

// param converts call arguments into the statement parameter: nothing for no
// arguments, the argument itself for one unnamed argument, otherwise a
// core.ParamMap keyed by declared names, "arg0".. and "param1"...
func (d *Dispatcher) param(method string, args []any) any {
	names := d.factory.spec(method).ParamNames
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 && len(names) == 0 {
		return args[0]
	}
	p := make(core.ParamMap, len(args)*2)
	for i, a := range args {
		if i < len(names) && names[i] != "" {
			p[names[i]] = a
		} else {
			p["arg"+strconv.Itoa(i)] = a
		}
		generic := "param" + strconv.Itoa(i+1)
		if _, taken := p[generic]; !taken {
			p[generic] = a
		}
	}
	return p
}

// One invokes a select expected to return at most one row.
// The boolean reports whether a row was found.
func One[T any](ctx context.Context, d *Dispatcher, method string, args ...any) (T, bool, error) {
	var zero T
	rows, err := List[T](ctx, d, method, args...)
	if err != nil {
		return zero, false, err
	}
	switch len(rows) {
	case 0:
		return zero, false, nil
	case 1:
		return rows[0], true, nil
	default:
		return zero, false, fmt.Errorf("%w: %d", ErrTooManyResults, len(rows))
	}
}

// List invokes a select and converts every row to T.
func List[T any](ctx context.Context, d *Dispatcher, method string, args ...any) ([]T, error) {
	res, err := d.Invoke(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if res.Kind != core.KindSelect {
		return nil, fmt.Errorf("binding: %s is a %s, not a select", method, res.Kind)
	}
	out := make([]T, 0, len(res.Rows))
	for i, row := range res.Rows {
		v, ok := row.(T)
		if !ok {
			return nil, fmt.Errorf("binding: row %d of %s is %T, want %s", i, method, row, reflect.TypeFor[T]())
		}
		out = append(out, v)
	}
	return out, nil
}

// Exec invokes an insert, update or delete and returns the affected row count.
func Exec(ctx context.Context, d *Dispatcher, method string, args ...any) (int64, error) {
	res, err := d.Invoke(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	if res.Kind == core.KindSelect {
		return 0, fmt.Errorf("binding: %s is a select", method)
	}
	return res.Affected, nil
}
