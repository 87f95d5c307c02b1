package schema_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/testutil"
)

func TestAliasesRoundTrip(t *testing.T) {
	a := testutil.UserType.Aliases()

	for local, wireName := range a.Pairs() {
		assert.Equal(t, local, a.LocalName(a.WireName(local)), "local %q", local)
		assert.Equal(t, wireName, a.WireName(a.LocalName(wireName)), "wire %q", wireName)
	}

	assert.Equal(t, "_id", a.WireName("id"))
	assert.Equal(t, "id", a.LocalName("_id"))
	assert.Equal(t, "n", a.WireName("name"))
	assert.Equal(t, "manager", a.LocalName("manager_id"))
}

func TestAliasesFallBackUnchanged(t *testing.T) {
	a := testutil.UserType.Aliases()
	assert.Equal(t, "nickname", a.WireName("nickname"))
	assert.Equal(t, "nickname", a.LocalName("nickname"))
	assert.Equal(t, "age", a.WireName("age"), "unaliased field")
}

func TestTypeLookups(t *testing.T) {
	ut := testutil.UserType
	assert.Equal(t, "user", ut.Tag())
	assert.Equal(t, "users", ut.Collection())
	assert.Equal(t, "address", testutil.AddressType.Collection(), "collection defaults to tag")

	f, ok := ut.Field("name")
	require.True(t, ok)
	assert.Equal(t, "n", f.Wire)

	f, ok = ut.FieldByWire("manager_id")
	require.True(t, ok)
	assert.Equal(t, schema.KindID, f.Kind)

	_, ok = ut.FieldByWire("name")
	assert.False(t, ok, "wire lookup uses wire names only")

	assert.True(t, ut.Excluded("password"))
	assert.True(t, ut.ExcludedWire("password"))
	assert.True(t, ut.IsEncrypted("email"))
	assert.False(t, ut.IsEncrypted("name"))
}

func TestDeclareRejectsBadTables(t *testing.T) {
	factory := func() model.Model { return model.NewRecord("x") }

	tests := []struct {
		name   string
		fields []schema.Field
		err    error
	}{
		{
			name:   "duplicate local name",
			fields: []schema.Field{schema.Dynamic("a", schema.KindScalar), schema.Dynamic("a", schema.KindScalar).As("b")},
			err:    schema.ErrDuplicateField,
		},
		{
			name:   "duplicate wire name",
			fields: []schema.Field{schema.Dynamic("a", schema.KindScalar), schema.Dynamic("b", schema.KindScalar).As("a")},
			err:    schema.ErrDuplicateField,
		},
		{
			name:   "reserved identity",
			fields: []schema.Field{schema.Dynamic("id", schema.KindScalar)},
			err:    schema.ErrInvalidField,
		},
		{
			name:   "nested without tag",
			fields: []schema.Field{schema.Dynamic("sub", schema.KindOne)},
			err:    schema.ErrInvalidField,
		},
		{
			name:   "scalar with tag",
			fields: []schema.Field{schema.Dynamic("sub", schema.KindScalar).Of("x")},
			err:    schema.ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Declare("x", factory, tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRegistryLinksNestedTypes(t *testing.T) {
	reg := testutil.Registry(t)
	ut := reg.MustLookup("user")

	addr, _ := ut.Field("address")
	nt, ok := reg.Nested(ut, addr)
	require.True(t, ok)
	assert.Equal(t, "address", nt.Tag())
	assert.False(t, reg.Opaque(ut, addr))

	legacy, _ := ut.Field("legacy")
	assert.True(t, reg.Opaque(ut, legacy), "unregistered tag is opaque")

	name, _ := ut.Field("name")
	assert.False(t, reg.Opaque(ut, name), "scalars are never opaque")
}

func TestRegistryLinksAreFixedAtRegistration(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(testutil.UserType))

	ut := reg.MustLookup("user")
	addr, _ := ut.Field("address")
	assert.True(t, reg.Opaque(ut, addr))

	require.NoError(t, reg.Register(testutil.AddressType))
	assert.True(t, reg.Opaque(ut, addr), "classification never changes after registration")
}

func TestRegistryErrors(t *testing.T) {
	reg := testutil.Registry(t)

	err := reg.Register(testutil.PhoneType)
	assert.ErrorIs(t, err, schema.ErrDuplicateType)

	_, err = reg.Lookup("nope")
	assert.ErrorIs(t, err, schema.ErrUnknownType)

	_, err = reg.New("nope")
	assert.ErrorIs(t, err, schema.ErrUnknownType)

	assert.Panics(t, func() { reg.MustLookup("nope") })
	assert.Equal(t, []string{"address", "phone", "user"}, reg.Tags())
}

func TestRegistryChildIsLazy(t *testing.T) {
	reg := testutil.Registry(t)
	u := &testutil.User{}
	assert.Nil(t, u.Address, "nested slots are not built up front")

	child, err := reg.Child(u, "address")
	require.NoError(t, err)
	require.NotNil(t, u.Address)
	assert.Same(t, u.Address, child)

	again, err := reg.Child(u, "address")
	require.NoError(t, err)
	assert.Same(t, child, again)

	_, err = reg.Child(u, "legacy")
	assert.ErrorIs(t, err, schema.ErrUnknownType)

	_, err = reg.Child(u, "phones")
	assert.ErrorIs(t, err, schema.ErrInvalidField)
}

func TestRegistryConcurrentConstruction(t *testing.T) {
	reg := testutil.Registry(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := reg.New("user")
			assert.NoError(t, err)
			_, err = reg.Child(m, "address")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestTypedFieldSetters(t *testing.T) {
	ut := testutil.UserType
	u := &testutil.User{}

	age, _ := ut.Field("age")
	assert.True(t, age.Set(u, int32(41)))
	assert.Equal(t, 41, u.Age)
	assert.False(t, age.Set(u, "forty"), "uncoercible value")
	assert.Equal(t, 41, u.Age, "failed coercion leaves the slot alone")

	born, _ := ut.Field("born")
	when := time.Date(2000, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.True(t, born.Set(u, primitive.NewDateTimeFromTime(when)))
	assert.True(t, when.Equal(u.Born))
	assert.True(t, when.Equal(born.Get(u).(time.Time)))

	u.Born = time.Time{}
	assert.Nil(t, born.Get(u), "zero time is omitted")

	mgr, _ := ut.Field("manager")
	assert.True(t, mgr.Set(u, "65a1b2c3d4e5f60718293a4b"))
	assert.Equal(t, "65a1b2c3d4e5f60718293a4b", u.Manager.Hex())

	phones, _ := ut.Field("phones")
	assert.Nil(t, phones.Get(u))
	assert.True(t, phones.Set(u, []model.Model{&testutil.Phone{Number: "1"}}))
	require.Len(t, u.Phones, 1)
	assert.False(t, phones.Set(u, []model.Model{&testutil.Address{}}), "wrong element type")

	addr, _ := ut.Field("address")
	assert.False(t, addr.Set(u, []model.Model{}), "single slot never takes a list")
}

func TestDynamicFields(t *testing.T) {
	r := model.NewRecord("x")

	f := schema.Dynamic("when", schema.KindDate)
	assert.True(t, f.Set(r, bdate()))
	v, _ := r.Get("when")
	_, isTime := v.(time.Time)
	assert.True(t, isTime)
	assert.False(t, f.Set(r, "soon"))

	many := schema.Dynamic("items", schema.KindMany).Of("item")
	assert.False(t, many.Set(r, model.NewRecord("item")), "list slot never takes a single instance")
	assert.True(t, many.Set(r, []model.Model{}))

	s := schema.Dynamic("s", schema.KindScalar)
	assert.Nil(t, s.Get(r))
	assert.True(t, s.Set(r, "x"))
	assert.Equal(t, "x", s.Get(r))
}

func TestParseKind(t *testing.T) {
	for _, k := range []schema.Kind{schema.KindScalar, schema.KindDate, schema.KindID, schema.KindOne, schema.KindMany} {
		got, err := schema.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := schema.ParseKind("blob")
	assert.ErrorIs(t, err, schema.ErrInvalidField)
}

func bdate() primitive.DateTime {
	return primitive.NewDateTimeFromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
