package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_PreservesAncestry(t *testing.T) {
	tree := BuildTree(sampleCategories())

	filtered := Filter(tree, "ANDROID")

	require.Len(t, filtered, 1)
	electronics := filtered[0]
	assert.Equal(t, "Electronics", electronics.Name)
	require.Len(t, electronics.Children, 1, "laptops does not match and is pruned")
	phones := electronics.Children[0]
	assert.Equal(t, "Phones", phones.Name)
	require.Len(t, phones.Children, 1)
	assert.Equal(t, "Android", phones.Children[0].Name)
}

func TestFilter_MatchingParentDropsNonMatchingChildren(t *testing.T) {
	tree := BuildTree(sampleCategories())

	filtered := Filter(tree, "phones")

	require.Len(t, filtered, 1)
	phones := filtered[0].Children[0]
	assert.Equal(t, "Phones", phones.Name)
	assert.Empty(t, phones.Children)
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	tree := BuildTree(sampleCategories())
	before := Count(tree)

	_ = Filter(tree, "shoes")

	assert.Equal(t, before, Count(tree))
	assert.Len(t, Find(tree, 1).Children, 2)
}

func TestFilter_EmptyTermReturnsTree(t *testing.T) {
	tree := BuildTree(sampleCategories())
	assert.Equal(t, tree, Filter(tree, "   "))
}

func TestFilter_NoMatches(t *testing.T) {
	tree := BuildTree(sampleCategories())
	assert.Empty(t, Filter(tree, "garden"))
}

func TestFilterActive(t *testing.T) {
	tree := BuildTree(sampleCategories())

	active := FilterActive(tree)

	require.Len(t, active, 1)
	assert.Equal(t, "Electronics", active[0].Name)
	assert.Nil(t, Find(active, 5))
	assert.NotNil(t, Find(active, 4))
	assert.Equal(t, 8, Count(tree), "input untouched")
}

func TestMatchingIDs(t *testing.T) {
	tree := BuildTree(sampleCategories())

	ids := MatchingIDs(tree, "o")

	for _, id := range []int64{1, 2, 3, 4, 5, 7, 8} {
		_, ok := ids[id]
		assert.True(t, ok, "id %d", id)
	}
	_, ok := ids[6]
	assert.False(t, ok)
	assert.Empty(t, MatchingIDs(tree, ""))
}
