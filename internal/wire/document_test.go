package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestLookupAndSet(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1}}

	v, ok := Lookup(doc, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(doc, "missing")
	assert.False(t, ok)

	doc = Set(doc, "a", 2)
	doc = Set(doc, "b", 3)
	assert.Equal(t, bson.D{{Key: "a", Value: 2}, {Key: "b", Value: 3}}, doc)
}

func TestLookupLastDuplicateWins(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1}, {Key: "a", Value: 2}}
	v, ok := Lookup(doc, "a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"a"}, Keys(doc))
}

func TestDelete(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}}
	doc = Delete(doc, "a")
	assert.Equal(t, bson.D{{Key: "b", Value: 2}}, doc)
	assert.False(t, Has(doc, "a"))
}

func TestCloneIsDeep(t *testing.T) {
	inner := bson.D{{Key: "x", Value: 1}}
	doc := bson.D{{Key: "sub", Value: inner}, {Key: "list", Value: bson.A{1}}}

	cp := Clone(doc)
	cp[0].Value.(bson.D)[0].Value = 99
	cp[1].Value.(bson.A)[0] = 99

	assert.Equal(t, 1, inner[0].Value)
	assert.Equal(t, 1, doc[1].Value.(bson.A)[0])
	assert.Nil(t, Clone(nil))
}

func TestFromMapSorted(t *testing.T) {
	doc := FromMap(map[string]any{"b": 1, "a": 2})
	assert.Equal(t, []string{"a", "b"}, Keys(doc))
}

func TestExtJSONRoundTrip(t *testing.T) {
	doc, err := FromExtJSON([]byte(`{"_id":{"$oid":"65a1b2c3d4e5f60718293a4b"},"n":1,"sub":{"x":[1,2]}}`))
	require.NoError(t, err)

	sub, ok := Lookup(doc, "sub")
	require.True(t, ok)
	assert.IsType(t, bson.D{}, sub)

	out, err := ToExtJSON(doc)
	require.NoError(t, err)
	again, err := FromExtJSON(out)
	require.NoError(t, err)
	assert.True(t, Equal(doc, again))
}

func TestBSONRoundTrip(t *testing.T) {
	doc := bson.D{{Key: "a", Value: "x"}, {Key: "b", Value: bson.A{int32(1)}}}
	raw, err := ToBSON(doc)
	require.NoError(t, err)
	back, err := FromBSON(raw)
	require.NoError(t, err)
	assert.True(t, Equal(doc, back))
}
