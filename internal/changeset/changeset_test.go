package changeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/crypt"
	"github.com/roach88/docmap/internal/mapper"
	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/testutil"
	"github.com/roach88/docmap/internal/wire"
)

var docID = primitive.ObjectID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}

func abMapper(t *testing.T) *mapper.Mapper {
	t.Helper()
	ab := schema.MustDeclare("ab", func() model.Model { return model.NewRecord("ab") }, []schema.Field{
		schema.Dynamic("a", schema.KindScalar),
		schema.Dynamic("b", schema.KindScalar),
		schema.Dynamic("hidden", schema.KindScalar),
	}, schema.Exclude("hidden"))
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(ab))
	return mapper.New(reg)
}

func inflate(t *testing.T, mp *mapper.Mapper, tag string, doc bson.D) model.Model {
	t.Helper()
	m, err := mp.Inflate(tag, doc)
	require.NoError(t, err)
	return m
}

func TestBuildRejectsNew(t *testing.T) {
	b := NewBuilder(abMapper(t))
	_, err := b.Build(model.NewRecord("ab"), false)
	assert.ErrorIs(t, err, ErrNotPersisted)
}

func TestBuildUnchangedIsEmpty(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{{Key: "_id", Value: docID}, {Key: "a", Value: int32(1)}, {Key: "b", Value: int32(2)}})

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.True(t, cs.Empty())
	assert.Empty(t, cs.Update())
}

func TestBuildSetsOnlyChangedField(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{{Key: "_id", Value: docID}, {Key: "a", Value: int32(1)}, {Key: "b", Value: int32(2)}})
	m.(*model.Record).Put("b", int32(3))

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "b", Value: int32(3)}}, cs.Set)
	assert.Empty(t, cs.Unset)
}

func TestBuildUnsetsRemovedKey(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{
		{Key: "_id", Value: docID},
		{Key: "a", Value: int32(1)},
		{Key: "b", Value: int32(2)},
		{Key: "c", Value: int32(3)},
	})
	require.True(t, m.Meta().DeleteExtra("c"))

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Empty(t, cs.Set)
	assert.Equal(t, []string{"c"}, cs.Unset)
}

func TestBuildNeverUnsetsIdentityOrExcluded(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{
		{Key: "_id", Value: docID},
		{Key: "a", Value: int32(1)},
		{Key: "hidden", Value: "keep me"},
	})

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Empty(t, cs.Unset)
}

func TestBuildSchemaFieldClearedIsSetToNull(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{{Key: "_id", Value: docID}, {Key: "a", Value: int32(1)}})
	m.(*model.Record).Unset("a")

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "a", Value: nil}}, cs.Set, "schema keys are nulled, not unset")
	assert.Empty(t, cs.Unset)
}

func TestBuildExplicitMarkForcesWrite(t *testing.T) {
	mp := abMapper(t)
	m := inflate(t, mp, "ab", bson.D{{Key: "_id", Value: docID}, {Key: "a", Value: int32(1)}})
	m.(*model.Record).Set("a", int32(1))

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cs.SetKeys())
}

func TestBuildLegacyKeyMigrates(t *testing.T) {
	mp := mapper.New(testutil.Registry(t))
	m := inflate(t, mp, "user", bson.D{{Key: "_id", Value: docID}, {Key: "name", Value: "Ada"}})

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)

	v, ok := wire.Lookup(cs.Set, "n")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)
	assert.Equal(t, []string{"name"}, cs.Unset)
}

func TestBuildNestedChange(t *testing.T) {
	mp := mapper.New(testutil.Registry(t))
	m := inflate(t, mp, "user", bson.D{
		{Key: "_id", Value: docID},
		{Key: "n", Value: "Ada"},
		{Key: "email", Value: ""},
		{Key: "age", Value: int32(0)},
		{Key: "status", Value: "active"},
		{Key: "address", Value: bson.D{{Key: "street", Value: "a"}, {Key: "city", Value: "b"}, {Key: "postal_code", Value: "c"}}},
		{Key: "phones", Value: bson.A{}},
	})
	b := NewBuilder(mp)

	cs, err := b.Build(m, false)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "got %v", cs)

	u := m.(*testutil.User)
	u.Address.City = "London"
	cs, err = b.Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"address"}, cs.SetKeys())
}

func TestBuildChildMarksStayOnTheChild(t *testing.T) {
	mp := mapper.New(testutil.Registry(t))
	m := inflate(t, mp, "user", bson.D{
		{Key: "_id", Value: docID},
		{Key: "n", Value: "Ada"},
		{Key: "email", Value: ""},
		{Key: "age", Value: int32(0)},
		{Key: "status", Value: "active"},
		{Key: "address", Value: bson.D{{Key: "street", Value: "a"}, {Key: "city", Value: "b"}, {Key: "postal_code", Value: "c"}}},
		{Key: "phones", Value: bson.A{bson.D{{Key: "kind", Value: "home"}, {Key: "number", Value: "1"}}}},
	})
	u := m.(*testutil.User)
	b := NewBuilder(mp)

	u.Address.Meta().Mark("city")
	u.Phones[0].Meta().Mark("kind")
	cs, err := b.Build(m, false)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "a child's marks do not propagate to the parent")

	u.Meta().Mark("address")
	cs, err = b.Build(m, false)
	require.NoError(t, err)
	require.Equal(t, []string{"address"}, cs.SetKeys())
	addr, _ := wire.Lookup(cs.Set, "address")
	city, _ := wire.Lookup(addr.(bson.D), "city")
	assert.Equal(t, "b", city, "marking the parent field rewrites the whole child")

	b.ClearMarks(m)
	assert.False(t, u.Meta().HasMarks())
	assert.False(t, u.Address.Meta().HasMarks())
	assert.False(t, u.Phones[0].Meta().HasMarks())
	cs, err = b.Build(m, false)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "got %v", cs)
}

func TestBuildUntouchedMalformedValuesIsEmpty(t *testing.T) {
	mp := mapper.New(testutil.Registry(t))
	m := inflate(t, mp, "user", bson.D{
		{Key: "_id", Value: docID},
		{Key: "n", Value: "Ada"},
		{Key: "email", Value: ""},
		{Key: "age", Value: "old"},
		{Key: "status", Value: "active"},
		{Key: "born", Value: "yesterday"},
	})
	b := NewBuilder(mp)

	cs, err := b.Build(m, false)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "got %v", cs)

	m.(*testutil.User).Age = 37
	cs, err = b.Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "age", Value: 37}}, cs.Set)
	assert.Empty(t, cs.Unset)
}

func TestBuildLegacyKeyBesideWireKeyIsKept(t *testing.T) {
	docs := map[string]bson.D{
		"legacy first": {{Key: "_id", Value: docID}, {Key: "name", Value: "Old"}, {Key: "n", Value: "Ada"}},
		"wire first":   {{Key: "_id", Value: docID}, {Key: "n", Value: "Ada"}, {Key: "name", Value: "Old"}},
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			mp := mapper.New(testutil.Registry(t))
			doc = append(doc, bson.D{{Key: "email", Value: ""}, {Key: "age", Value: int32(0)}, {Key: "status", Value: "active"}}...)
			m := inflate(t, mp, "user", doc)
			assert.Equal(t, "Ada", m.(*testutil.User).Name)

			cs, err := NewBuilder(mp).Build(m, false)
			require.NoError(t, err)
			assert.True(t, cs.Empty(), "got %v", cs)
		})
	}
}

func TestBuildEncryptedSetValues(t *testing.T) {
	key, err := crypt.NewKey()
	require.NoError(t, err)
	adapter, err := crypt.NewAEAD(key)
	require.NoError(t, err)
	mp := mapper.New(testutil.Registry(t), mapper.WithGate(crypt.NewGate(adapter)))

	u := &testutil.User{Email: "old@example.com", Status: "active"}
	stored, err := mp.Deflate(u, true)
	require.NoError(t, err)
	stored = append(bson.D{{Key: "_id", Value: docID}}, stored...)

	m := inflate(t, mp, "user", stored)
	m.(*testutil.User).Email = "new@example.com"
	b := NewBuilder(mp)

	plain, err := b.Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "email", Value: "new@example.com"}}, plain.Set)

	enc, err := b.Build(m, true)
	require.NoError(t, err)
	require.Equal(t, []string{"email"}, enc.SetKeys())
	ct, _ := wire.Lookup(enc.Set, "email")
	assert.IsType(t, "", ct)
	assert.NotEqual(t, "new@example.com", ct)
}

func TestApplyMatchesDeflate(t *testing.T) {
	mp := abMapper(t)
	snap := bson.D{{Key: "_id", Value: docID}, {Key: "a", Value: int32(1)}, {Key: "b", Value: int32(2)}, {Key: "c", Value: int32(3)}}
	m := inflate(t, mp, "ab", snap)
	m.(*model.Record).Put("a", "one")
	m.Meta().DeleteExtra("c")
	m.Meta().SetExtra("d", true)

	cs, err := NewBuilder(mp).Build(m, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, cs.SetKeys())

	want, err := mp.Deflate(m, false)
	require.NoError(t, err)
	assert.True(t, wire.Equal(want, Apply(snap, cs)))
}

func TestUpdateDocument(t *testing.T) {
	cs := &ChangeSet{
		Set:   bson.D{{Key: "a", Value: 1}},
		Unset: []string{"c"},
	}
	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{{Key: "a", Value: 1}}},
		{Key: "$unset", Value: bson.D{{Key: "c", Value: ""}}},
	}, cs.Update())
}
