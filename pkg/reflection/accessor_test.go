package reflection

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Address struct {
	City string
	Zip  string `map:"postal_code"`
}

type Base struct {
	ID int64
}

type Person struct {
	Base
	Name    string
	Address *Address
	Tags    map[string]any
	secret  string
}

func TestAccessor_PropertyType(t *testing.T) {
	a := &Accessor{}
	person := reflect.TypeFor[Person]()

	tests := []struct {
		name    string
		typ     reflect.Type
		prop    string
		want    reflect.Type
		wantErr bool
	}{
		{"exact field", person, "Name", reflect.TypeFor[string](), false},
		{"case-insensitive", person, "name", reflect.TypeFor[string](), false},
		{"promoted field", person, "ID", reflect.TypeFor[int64](), false},
		{"pointer type", reflect.TypeFor[*Person](), "Name", reflect.TypeFor[string](), false},
		{"nested path", person, "Address.City", reflect.TypeFor[string](), false},
		{"map tag", person, "Address.postal_code", reflect.TypeFor[string](), false},
		{"map entry", person, "Tags.anything", reflect.TypeFor[any](), false},
		{"unexported", person, "secret", nil, true},
		{"missing", person, "Age", nil, true},
		{"scalar has no properties", reflect.TypeFor[int](), "x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.PropertyType(tt.typ, tt.prop)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoProperty)
				assert.False(t, a.HasWritableProperty(tt.typ, tt.prop))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, a.HasWritableProperty(tt.typ, tt.prop))
		})
	}
}

func TestAccessor_GetSetValue(t *testing.T) {
	a := &Accessor{}
	p := &Person{}

	require.NoError(t, a.SetValue(p, "Name", "Ada"))
	require.NoError(t, a.SetValue(p, "ID", 7)) // int converts to int64
	require.NoError(t, a.SetValue(p, "Address.City", "London"))
	require.NoError(t, a.SetValue(p, "Tags", map[string]any{"role": "admin"}))

	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, int64(7), p.ID)
	require.NotNil(t, p.Address, "intermediate pointers are allocated")
	assert.Equal(t, "London", p.Address.City)

	v, err := a.GetValue(p, "Address.City")
	require.NoError(t, err)
	assert.Equal(t, "London", v)

	v, err = a.GetValue(p, "Tags.role")
	require.NoError(t, err)
	assert.Equal(t, "admin", v)

	v, err = a.GetValue(&Person{}, "Address.City")
	require.NoError(t, err)
	assert.Nil(t, v, "nil intermediate yields nil")

	_, err = a.GetValue(p, "Missing")
	assert.ErrorIs(t, err, ErrNoProperty)

	assert.ErrorIs(t, a.SetValue(Person{}, "Name", "x"), ErrNotAddressable)
	assert.Error(t, a.SetValue(p, "Name", 42))
}

func TestAccessor_MapInstance(t *testing.T) {
	a := &Accessor{}
	m := map[string]any{}

	require.NoError(t, a.SetValue(m, "count", 3))
	v, err := a.GetValue(m, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user_name", "UserName"},
		{"USER_NAME", "UserName"},
		{"id", "Id"},
		{"_leading__double", "LeadingDouble"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CamelCase(tt.in))
		})
	}
}

func TestPropertyForColumn(t *testing.T) {
	a := &Accessor{}
	person := reflect.TypeFor[Person]()

	name, ok := a.PropertyForColumn(person, "NAME", false)
	require.True(t, ok)
	assert.Equal(t, "Name", name)

	_, ok = a.PropertyForColumn(reflect.TypeFor[Address](), "postal_code_x", true)
	assert.False(t, ok)

	name, ok = a.PropertyForColumn(reflect.TypeFor[Address](), "postal_code", false)
	require.True(t, ok)
	assert.Equal(t, "Zip", name)
}
