package dirty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docmap/internal/model"
	"github.com/roach88/docmap/internal/schema"
)

func abcRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	typ, err := schema.Declare("abc", func() model.Model { return model.NewRecord("abc") }, []schema.Field{
		schema.Dynamic("a", schema.KindScalar),
		schema.Dynamic("b", schema.KindScalar).As("bee"),
		schema.Dynamic("when", schema.KindDate),
		schema.Dynamic("sub", schema.KindOne).Of("missing"),
		schema.Dynamic("secret", schema.KindScalar),
	}, schema.Exclude("secret"))
	require.NoError(t, err)

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(typ))
	return reg
}

func persisted(snap bson.D) *model.Record {
	r := model.NewRecord("abc")
	r.Meta().SetID(primitive.NewObjectID())
	r.Meta().SetSnapshot(snap)
	return r
}

func TestStateOf(t *testing.T) {
	r := model.NewRecord("abc")
	s, err := StateOf(r)
	require.NoError(t, err)
	assert.Equal(t, StateNew, s)

	r.Meta().SetSnapshot(bson.D{{Key: "a", Value: 1}})
	s, err = StateOf(r)
	require.NoError(t, err)
	assert.Equal(t, StateNew, s, "snapshot without id is still new")

	r = model.NewRecord("abc")
	r.Meta().SetID(primitive.NewObjectID())
	_, err = StateOf(r)
	assert.ErrorIs(t, err, ErrInvalidState)

	r.Meta().SetSnapshot(bson.D{})
	s, err = StateOf(r)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, s)
	assert.Equal(t, "persisted", s.String())
}

func TestDirtyNewInstanceBypassesTracking(t *testing.T) {
	tr := NewTracker(abcRegistry(t))

	set, err := tr.Dirty(model.NewRecord("abc"), bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestDirtyValueDiff(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := persisted(bson.D{{Key: "a", Value: 1}, {Key: "bee", Value: 2}})

	set, err := tr.Dirty(r, bson.D{{Key: "a", Value: 1}, {Key: "bee", Value: 3}})
	require.NoError(t, err)
	assert.Equal(t, Set{"b"}, set)
}

func TestDirtyIgnoresRepresentation(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	when := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	r := persisted(bson.D{
		{Key: "a", Value: int32(1)},
		{Key: "bee", Value: bson.M{"x": bson.A{1, 2}}},
		{Key: "when", Value: primitive.NewDateTimeFromTime(when)},
	})

	set, err := tr.Dirty(r, bson.D{
		{Key: "a", Value: int64(1)},
		{Key: "bee", Value: bson.D{{Key: "x", Value: []any{int64(1), int64(2)}}}},
		{Key: "when", Value: when.Add(300 * time.Microsecond)},
	})
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestDirtyDetectsRetypeAndNormalization(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := persisted(bson.D{
		{Key: "a", Value: int32(1)},
		{Key: "bee", Value: "\u00e9"},
	})

	set, err := tr.Dirty(r, bson.D{
		{Key: "a", Value: 1.0},
		{Key: "bee", Value: "e\u0301"},
	})
	require.NoError(t, err)
	assert.Equal(t, Set{"a", "b"}, set)
}

func TestDirtyNewlyIntroducedField(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := persisted(bson.D{{Key: "a", Value: 1}})

	set, err := tr.Dirty(r, bson.D{{Key: "a", Value: 1}, {Key: "bee", Value: nil}})
	require.NoError(t, err)
	assert.Equal(t, Set{"b"}, set)
}

func TestDirtyRemovedValueComparesAsNull(t *testing.T) {
	tr := NewTracker(abcRegistry(t))

	r := persisted(bson.D{{Key: "a", Value: 1}, {Key: "bee", Value: nil}})
	set, err := tr.Dirty(r, bson.D{})
	require.NoError(t, err)
	assert.Equal(t, Set{"a"}, set, "a went away, bee was already null")
}

func TestDirtyExplicitMarkForcesWrite(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := persisted(bson.D{{Key: "a", Value: 1}})
	Mark(r, "a")

	set, err := tr.Dirty(r, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, Set{"a"}, set)

	Clear(r)
	set, err = tr.Dirty(r, bson.D{{Key: "a", Value: 1}})
	require.NoError(t, err)
	assert.Empty(t, set)

	set, err = tr.Dirty(r, bson.D{{Key: "a", Value: 2}})
	require.NoError(t, err)
	assert.Equal(t, Set{"a"}, set, "clear never disables the value diff")
}

func TestDirtySkipsExcludedAndCoversOverflow(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := persisted(bson.D{
		{Key: "secret", Value: "x"},
		{Key: "legacy", Value: "old"},
		{Key: "sub", Value: bson.D{{Key: "x", Value: 1}}},
	})
	r.Meta().SetExtra("legacy", "new")
	r.Meta().SetExtra("sub", bson.D{{Key: "x", Value: 2}})
	r.Meta().SetExtra("fresh", true)

	set, err := tr.Dirty(r, bson.D{
		{Key: "legacy", Value: "new"},
		{Key: "sub", Value: bson.D{{Key: "x", Value: 2}}},
		{Key: "fresh", Value: true},
	})
	require.NoError(t, err)
	assert.Equal(t, Set{"fresh", "legacy", "sub"}, set)
	assert.True(t, set.Has("sub"))
	assert.False(t, set.Has("secret"))
}

func TestDirtyInvalidState(t *testing.T) {
	tr := NewTracker(abcRegistry(t))
	r := model.NewRecord("abc")
	r.Meta().SetID(primitive.NewObjectID())

	_, err := tr.Dirty(r, bson.D{})
	assert.ErrorIs(t, err, ErrInvalidState)
}
