package mapping

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Account struct {
	ID int64
}

type AccountMapper interface {
	Find(id int64) (*Account, error)
}

func TestTypeAliases_Resolve(t *testing.T) {
	a := NewTypeAliases()
	require.NoError(t, a.RegisterType(reflect.TypeFor[Account]()))
	require.NoError(t, a.Register("acct", reflect.TypeFor[Account]()))

	tests := []struct {
		name string
		want reflect.Type
	}{
		{"string", reflect.TypeFor[string]()},
		{"LONG", reflect.TypeFor[int64]()},
		{"acct", reflect.TypeFor[Account]()},
		{"mapping.Account", reflect.TypeFor[Account]()},
		{"github.com/leapstack-labs/leapmap/pkg/mapping.Account", reflect.TypeFor[Account]()},
		{"*acct", reflect.TypeFor[*Account]()},
		{"[]acct", reflect.TypeFor[[]Account]()},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Resolve(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := a.Resolve("Nope")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestTypeAliases_Conflicts(t *testing.T) {
	a := NewTypeAliases()
	require.NoError(t, a.Register("acct", reflect.TypeFor[Account]()))
	assert.NoError(t, a.Register("ACCT", reflect.TypeFor[Account]()), "re-registering the same pair is fine")
	assert.ErrorIs(t, a.Register("acct", reflect.TypeFor[AccountMapper]()), ErrAliasConflict)
	assert.Error(t, a.RegisterType(reflect.TypeFor[[]Account]()), "unnamed types cannot be registered")
}
