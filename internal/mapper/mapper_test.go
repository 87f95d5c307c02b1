package mapper

import (
	"bytes"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/crypt"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/testutil"
	"github.com/roach88/docmap/internal/wire"
)

var (
	userID    = mustOID("65a1b2c3d4e5f60718293a4b")
	managerID = mustOID("65a1b2c3d4e5f60718293a4c")
	born      = time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC)
)

func mustOID(hex string) primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		panic(err)
	}
	return oid
}

func userDoc() bson.D {
	return bson.D{
		{Key: "_id", Value: userID},
		{Key: "n", Value: "Ada"},
		{Key: "email", Value: "ada@example.com"},
		{Key: "age", Value: int32(36)},
		{Key: "status", Value: "active"},
		{Key: "born", Value: primitive.NewDateTimeFromTime(born)},
		{Key: "manager_id", Value: managerID},
		{Key: "tags", Value: bson.A{"math", "poet"}},
		{Key: "address", Value: bson.D{
			{Key: "street", Value: "St James's Square"},
			{Key: "city", Value: "London"},
			{Key: "postal_code", Value: "SW1"},
		}},
		{Key: "phones", Value: bson.A{
			bson.D{{Key: "kind", Value: "home"}, {Key: "number", Value: "1"}},
		}},
	}
}

func newMapper(t *testing.T, opts ...Option) *Mapper {
	t.Helper()
	return New(testutil.Registry(t), opts...)
}

func gateWithKey(t *testing.T) *crypt.Gate {
	t.Helper()
	key, err := crypt.NewKey()
	require.NoError(t, err)
	a, err := crypt.NewAEAD(key)
	require.NoError(t, err)
	return crypt.NewGate(a)
}

func TestInflateTypedFields(t *testing.T) {
	mp := newMapper(t)

	m, err := mp.Inflate("user", userDoc())
	require.NoError(t, err)
	u := m.(*testutil.User)

	id, ok := u.Meta().ID()
	require.True(t, ok)
	assert.Equal(t, userID, id)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, 36, u.Age)
	assert.True(t, born.Equal(u.Born))
	assert.Equal(t, managerID, u.Manager)
	assert.Equal(t, []string{"math", "poet"}, u.Tags)
	require.NotNil(t, u.Address)
	assert.Equal(t, "SW1", u.Address.Zip)
	require.Len(t, u.Phones, 1)
	assert.Equal(t, "home", u.Phones[0].Kind)
	assert.Empty(t, u.Meta().Extras())
}

func TestInflateCapturesSnapshots(t *testing.T) {
	mp := newMapper(t)
	doc := userDoc()

	m, err := mp.Inflate("user", doc)
	require.NoError(t, err)
	u := m.(*testutil.User)

	assert.True(t, wire.Equal(doc, u.Meta().Snapshot()))

	addr, _ := wire.Lookup(doc, "address")
	assert.True(t, wire.Equal(addr, u.Address.Meta().Snapshot()), "children keep their own snapshot")
	_, hasID := u.Address.Meta().ID()
	assert.False(t, hasID)
}

func TestDeflateInflateDeflateIsStable(t *testing.T) {
	mp := newMapper(t)

	u := &testutil.User{
		Name:    "Grace",
		Email:   "grace@example.com",
		Age:     85,
		Status:  "retired",
		Born:    time.Date(1906, 12, 9, 0, 0, 0, 0, time.UTC),
		Manager: managerID,
		Tags:    []string{"cobol"},
		Address: &testutil.Address{Street: "Navy Yard", City: "Arlington"},
		Phones:  []*testutil.Phone{{Kind: "work", Number: "2"}, {Kind: "home", Number: "3"}},
	}
	u.Meta().SetID(userID)

	first, err := mp.Deflate(u, false)
	require.NoError(t, err)

	back, err := mp.Inflate("user", first)
	require.NoError(t, err)
	second, err := mp.Deflate(back, false)
	require.NoError(t, err)

	assert.Equal(t, wire.Keys(first), wire.Keys(second))
	assert.True(t, wire.Equal(first, second))
}

func TestDeflateOrder(t *testing.T) {
	mp := newMapper(t)
	u := &testutil.User{Name: "Ada"}
	u.Meta().SetID(userID)
	u.Meta().SetExtra("nickname", "countess")

	doc, err := mp.Deflate(u, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"_id", "n", "email", "age", "status", "nickname"}, wire.Keys(doc),
		"identity first, empty slots omitted, overflow last")
}

func TestDeflateOverflowNeverShadows(t *testing.T) {
	mp := newMapper(t)
	u := &testutil.User{Name: "Ada"}
	u.Meta().SetExtra("n", "shadow")

	doc, err := mp.Deflate(u, false)
	require.NoError(t, err)

	v, _ := wire.Lookup(doc, "n")
	assert.Equal(t, "Ada", v)
	assert.Len(t, doc, 4)
}

func TestInflateUnknownKeysRoundTrip(t *testing.T) {
	mp := newMapper(t)
	doc := append(userDoc(), bson.E{Key: "legacy_score", Value: bson.D{{Key: "v", Value: int32(3)}}})

	m, err := mp.Inflate("user", doc)
	require.NoError(t, err)

	v, ok := m.Meta().Extra("legacy_score")
	require.True(t, ok)
	assert.True(t, wire.Equal(bson.D{{Key: "v", Value: 3}}, v))

	out, err := mp.Deflate(m, false)
	require.NoError(t, err)
	assert.True(t, wire.Equal(doc, out))
}

func TestInflateOpaqueNestedRoundTrips(t *testing.T) {
	holder := schema.MustDeclare("holder", func() model.Model { return model.NewRecord("holder") }, []schema.Field{
		schema.Dynamic("sub", schema.KindOne).Of("nowhere"),
	})
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(holder))
	mp := New(reg)

	in := bson.D{{Key: "sub", Value: bson.D{{Key: "x", Value: int32(1)}}}}
	m, err := mp.Inflate("holder", in)
	require.NoError(t, err)

	out, err := mp.Deflate(m, false)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestInflateListShapes(t *testing.T) {
	mp := newMapper(t)

	tests := []struct {
		name   string
		phones any
		want   int
		extra  bool
	}{
		{"empty list", bson.A{}, 0, false},
		{"single element", bson.A{bson.D{{Key: "kind", Value: "x"}, {Key: "number", Value: "1"}}}, 1, false},
		{"bare document", bson.D{{Key: "kind", Value: "x"}}, 0, true},
		{"scalar elements", bson.A{"x", "y"}, 0, true},
		{"missing", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := bson.D{{Key: "n", Value: "Ada"}}
			if tt.phones != nil {
				doc = append(doc, bson.E{Key: "phones", Value: tt.phones})
			}
			m, err := mp.Inflate("user", doc)
			require.NoError(t, err)
			u := m.(*testutil.User)

			assert.Len(t, u.Phones, tt.want)
			_, inExtra := u.Meta().Extra("phones")
			assert.Equal(t, tt.extra, inExtra)

			out, err := mp.Deflate(u, false)
			require.NoError(t, err)
			if tt.phones != nil {
				got, _ := wire.Lookup(out, "phones")
				assert.True(t, wire.Equal(tt.phones, got), "wire value preserved")
			}
		})
	}
}

func TestInflateSlotsAreLazy(t *testing.T) {
	mp := newMapper(t)
	m, err := mp.Inflate("user", bson.D{})
	require.NoError(t, err)

	u := m.(*testutil.User)
	assert.Nil(t, u.Phones, "absent lists stay absent")
	assert.Nil(t, u.Address, "absent children are built on first access")

	out, err := mp.Deflate(u, false)
	require.NoError(t, err)
	assert.False(t, wire.Has(out, "phones"))
	assert.False(t, wire.Has(out, "address"))
}

func TestInflateEmptyListStaysList(t *testing.T) {
	mp := newMapper(t)
	m, err := mp.Inflate("user", bson.D{{Key: "phones", Value: bson.A{}}})
	require.NoError(t, err)

	u := m.(*testutil.User)
	assert.NotNil(t, u.Phones)
	assert.Empty(t, u.Phones)
}

func TestInflateSingleNeverTakesList(t *testing.T) {
	mp := newMapper(t)
	list := bson.A{bson.D{{Key: "street", Value: "a"}}}

	m, err := mp.Inflate("user", bson.D{{Key: "address", Value: list}})
	require.NoError(t, err)
	u := m.(*testutil.User)

	assert.Nil(t, u.Address)
	v, ok := u.Meta().Extra("address")
	require.True(t, ok)
	assert.True(t, wire.Equal(list, v))
}

func TestInflateAliasesAndExclusion(t *testing.T) {
	mp := newMapper(t)
	m, err := mp.Inflate("user", bson.D{
		{Key: "name", Value: "Legacy"},
		{Key: "password", Value: "hunter2"},
	})
	require.NoError(t, err)
	u := m.(*testutil.User)

	assert.Equal(t, "Legacy", u.Name, "unaliased key falls back to the local name")
	assert.Empty(t, u.Password, "excluded names are never read")
	assert.True(t, wire.Has(u.Meta().Snapshot(), "password"))

	out, err := mp.Deflate(u, false)
	require.NoError(t, err)
	assert.True(t, wire.Has(out, "n"))
	assert.False(t, wire.Has(out, "name"))
	assert.False(t, wire.Has(out, "password"), "excluded names are never written")
}

func TestInflateIdentity(t *testing.T) {
	mp := newMapper(t)

	m, err := mp.Inflate("user", bson.D{{Key: "_id", Value: userID.Hex()}})
	require.NoError(t, err)
	id, ok := m.Meta().ID()
	require.True(t, ok)
	assert.Equal(t, userID, id)

	m, err = mp.Inflate("user", bson.D{{Key: "_id", Value: int32(42)}})
	require.NoError(t, err)
	_, ok = m.Meta().ID()
	assert.False(t, ok)
	v, _ := m.Meta().Extra("_id")
	assert.Equal(t, int32(42), v)

	out, err := mp.Deflate(m, false)
	require.NoError(t, err)
	assert.Equal(t, "_id", out[len(out)-1].Key, "unparseable identity survives via overflow")
}

func TestInflateConversionFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mp := newMapper(t, WithLogger(logger))

	m, err := mp.Inflate("user", bson.D{{Key: "age", Value: "old"}, {Key: "born", Value: "yesterday"}})
	require.NoError(t, err, "malformed legacy data never fails inflate")
	u := m.(*testutil.User)

	assert.Zero(t, u.Age)
	assert.True(t, u.Born.IsZero())
	assert.Contains(t, buf.String(), "value not convertible")
	assert.Contains(t, buf.String(), "field=age")

	raw, ok := u.Meta().Extra("age")
	require.True(t, ok, "the stored value moves to overflow")
	assert.Equal(t, "old", raw)

	out, err := mp.Deflate(u, false)
	require.NoError(t, err)
	age, _ := wire.Lookup(out, "age")
	when, _ := wire.Lookup(out, "born")
	assert.Equal(t, "old", age)
	assert.Equal(t, "yesterday", when)
	keys := wire.Keys(out)
	assert.Less(t, slices.Index(keys, "age"), slices.Index(keys, "status"), "unconverted values keep their field position")
}

func TestDeflateReplacesUnconvertedValueOnceAssigned(t *testing.T) {
	mp := newMapper(t)
	m, err := mp.Inflate("user", bson.D{{Key: "age", Value: "old"}})
	require.NoError(t, err)
	u := m.(*testutil.User)

	u.Age = 37
	out, err := mp.Deflate(u, false)
	require.NoError(t, err)
	v, _ := wire.Lookup(out, "age")
	assert.Equal(t, 37, v)

	u.Age = 0
	u.Meta().Mark("age")
	out, err = mp.Deflate(u, false)
	require.NoError(t, err)
	v, _ = wire.Lookup(out, "age")
	assert.Equal(t, 0, v, "a marked field writes its slot")
}

func TestInflateLegacyKeyYieldsToWireKey(t *testing.T) {
	docs := map[string]bson.D{
		"legacy first": {{Key: "name", Value: "Old"}, {Key: "n", Value: "Ada"}},
		"wire first":   {{Key: "n", Value: "Ada"}, {Key: "name", Value: "Old"}},
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			mp := newMapper(t)
			m, err := mp.Inflate("user", doc)
			require.NoError(t, err)
			u := m.(*testutil.User)

			assert.Equal(t, "Ada", u.Name)
			legacy, ok := u.Meta().Extra("name")
			require.True(t, ok)
			assert.Equal(t, "Old", legacy)

			out, err := mp.Deflate(u, false)
			require.NoError(t, err)
			n, _ := wire.Lookup(out, "n")
			assert.Equal(t, "Ada", n)
			assert.True(t, wire.Has(out, "name"))
		})
	}
}

func TestInflateRunsHook(t *testing.T) {
	mp := newMapper(t)

	m, err := mp.Inflate("user", bson.D{{Key: "n", Value: "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "active", m.(*testutil.User).Status)

	m, err = mp.Inflate("user", bson.D{{Key: "status", Value: "banned"}})
	require.NoError(t, err)
	assert.Equal(t, "banned", m.(*testutil.User).Status)
}

func TestInflatePlaintextInEncryptedFieldFails(t *testing.T) {
	mp := newMapper(t, WithGate(gateWithKey(t)))

	_, err := mp.Inflate("user", userDoc())
	assert.True(t, crypt.IsDecryptError(err), "plaintext where ciphertext is expected is never accepted")
}

func TestInflateUnknownType(t *testing.T) {
	_, err := newMapper(t).Inflate("ghost", bson.D{})
	assert.ErrorIs(t, err, schema.ErrUnknownType)
}

func TestEncryptionRoundTrip(t *testing.T) {
	mp := newMapper(t, WithGate(gateWithKey(t)))
	m := &testutil.User{Name: "Ada", Email: "ada@example.com"}

	stored, err := mp.Deflate(m, true)
	require.NoError(t, err)
	ct, _ := wire.Lookup(stored, "email")
	require.IsType(t, "", ct)
	assert.NotEqual(t, "ada@example.com", ct)

	plain, err := mp.Deflate(m, false)
	require.NoError(t, err)
	v, _ := wire.Lookup(plain, "email")
	assert.Equal(t, "ada@example.com", v)

	back, err := mp.Inflate("user", stored)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", back.(*testutil.User).Email)

	snap, _ := wire.Lookup(back.Meta().Snapshot(), "email")
	assert.Equal(t, "ada@example.com", snap, "snapshot holds plaintext")
}

func TestEncryptionWrongKey(t *testing.T) {
	stored, err := newMapper(t, WithGate(gateWithKey(t))).Deflate(&testutil.User{Email: "x@example.com"}, true)
	require.NoError(t, err)

	_, err = newMapper(t, WithGate(gateWithKey(t))).Inflate("user", stored)
	require.Error(t, err)
	assert.True(t, crypt.IsDecryptError(err))
	assert.ErrorIs(t, err, crypt.ErrAuthentication)
}

func TestEncryptionWholeSubObject(t *testing.T) {
	box := schema.MustDeclare("box", func() model.Model { return model.NewRecord("box") }, []schema.Field{
		schema.Dynamic("pin", schema.KindScalar),
	})
	vault := schema.MustDeclare("vault", func() model.Model { return model.NewRecord("vault") }, []schema.Field{
		schema.Dynamic("label", schema.KindScalar),
		schema.Dynamic("box", schema.KindOne).Of("box").Secret(),
	})
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(vault, box))
	mp := New(reg, WithGate(gateWithKey(t)))

	v := model.NewRecord("vault")
	v.Put("label", "main")
	b := model.NewRecord("box")
	b.Put("pin", "1234")
	v.Put("box", model.Model(b))

	stored, err := mp.Deflate(v, true)
	require.NoError(t, err)
	ct, _ := wire.Lookup(stored, "box")
	require.IsType(t, "", ct, "the serialized sub-object is one opaque string")

	back, err := mp.Inflate("vault", stored)
	require.NoError(t, err)
	child, ok := back.(*model.Record).Get("box")
	require.True(t, ok)
	pin, _ := child.(*model.Record).Get("pin")
	assert.Equal(t, "1234", pin)
}
