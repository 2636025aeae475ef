package taxonomy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func sampleCategories() []Category {
	return []Category{
		{ID: 1, Name: "Electronics", Level: 0, IsActive: true, SortOrder: 1},
		{ID: 2, Name: "Phones", ParentID: ptr(int64(1)), Level: 1, IsActive: true, SortOrder: 2},
		{ID: 3, Name: "laptops", ParentID: ptr(int64(1)), Level: 1, IsActive: true, SortOrder: 1},
		{ID: 4, Name: "Android", ParentID: ptr(int64(2)), Level: 2, IsActive: true},
		{ID: 5, Name: "iOS", ParentID: ptr(int64(2)), Level: 2, IsActive: false},
		{ID: 6, Name: "Apparel", Level: 0, IsActive: false, SortOrder: 1},
		{ID: 7, Name: "Shoes", ParentID: ptr(int64(6)), Level: 1, IsActive: true},
		{ID: 8, Name: "Accessories", ParentID: ptr(int64(3)), Level: 2, IsActive: true},
	}
}

func TestBuildTree_RootAndChild(t *testing.T) {
	tree := BuildTree([]Category{
		{ID: 1, Name: "Root", Level: 0},
		{ID: 2, Name: "Child", ParentID: ptr(int64(1)), Level: 1},
	})

	require.Len(t, tree, 1)
	assert.Equal(t, int64(1), tree[0].ID)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "Child", tree[0].Children[0].Name)
	assert.NotNil(t, tree[0].Children[0].Children)
	assert.Empty(t, tree[0].Children[0].Children)

	raw, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"children":[]`)
	assert.Contains(t, string(raw), `"name":"Root"`)
}

func TestBuildTree_SortOrder(t *testing.T) {
	tree := BuildTree(sampleCategories())

	require.Len(t, tree, 2)
	// Both roots share sort_order 1, so name decides case-insensitively.
	assert.Equal(t, "Apparel", tree[0].Name)
	assert.Equal(t, "Electronics", tree[1].Name)

	electronics := tree[1]
	require.Len(t, electronics.Children, 2)
	assert.Equal(t, "laptops", electronics.Children[0].Name)
	assert.Equal(t, "Phones", electronics.Children[1].Name)
}

func TestBuildTree_NameTieBreakIsCaseInsensitive(t *testing.T) {
	tree := BuildTree([]Category{
		{ID: 1, Name: "banana"},
		{ID: 2, Name: "Apple"},
		{ID: 3, Name: "cherry"},
	})

	names := []string{tree[0].Name, tree[1].Name, tree[2].Name}
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, names)
}

func TestBuildTree_RoundTrip(t *testing.T) {
	input := sampleCategories()
	flat := Flatten(BuildTree(input))

	require.Len(t, flat, len(input))
	seen := make(map[int64]int)
	for _, c := range flat {
		seen[c.ID]++
	}
	for _, c := range input {
		assert.Equal(t, 1, seen[c.ID], "category %d should appear exactly once", c.ID)
	}
}

func TestBuildTree_LevelInvariant(t *testing.T) {
	tree := BuildTree(sampleCategories())

	var check func(nodes []*Node, parent *Node)
	check = func(nodes []*Node, parent *Node) {
		for _, n := range nodes {
			if parent == nil {
				assert.Equal(t, 0, n.Level, "root %d", n.ID)
			} else {
				assert.Equal(t, parent.Level+1, n.Level, "node %d", n.ID)
			}
			check(n.Children, n)
		}
	}
	check(tree, nil)
}

func TestBuildTree_OrphanPromotedToRoot(t *testing.T) {
	tree := BuildTree([]Category{
		{ID: 1, Name: "Root"},
		{ID: 2, Name: "Orphan", ParentID: ptr(int64(99)), Level: 3},
	})

	require.Len(t, tree, 2)
	orphan := Find(tree, 2)
	require.NotNil(t, orphan)
	assert.Equal(t, 0, orphan.Level)
	assert.Equal(t, ptr(int64(99)), orphan.ParentID, "parent reference is preserved, not rewritten")
}

func TestBuildTree_CycleIsBrokenNotDropped(t *testing.T) {
	tree := BuildTree([]Category{
		{ID: 1, Name: "A", ParentID: ptr(int64(2))},
		{ID: 2, Name: "B", ParentID: ptr(int64(1))},
		{ID: 3, Name: "C", ParentID: ptr(int64(1))},
	})

	assert.Equal(t, 3, Count(tree))
	require.Len(t, tree, 1)
	assert.Equal(t, int64(1), tree[0].ID)
}

func TestBuildTree_SelfParentIsRoot(t *testing.T) {
	tree := BuildTree([]Category{{ID: 1, Name: "Self", ParentID: ptr(int64(1))}})
	require.Len(t, tree, 1)
	assert.Equal(t, 0, tree[0].Level)
}

func TestBuildTree_DuplicateIDsKeepFirst(t *testing.T) {
	tree := BuildTree([]Category{
		{ID: 1, Name: "First"},
		{ID: 1, Name: "Second"},
	})
	require.Len(t, tree, 1)
	assert.Equal(t, "First", tree[0].Name)
}

func TestBuildTree_EffectiveActive(t *testing.T) {
	tree := BuildTree(sampleCategories())

	assert.True(t, Find(tree, 1).EffectiveActive)
	assert.False(t, Find(tree, 5).EffectiveActive, "inactive itself")
	assert.False(t, Find(tree, 6).EffectiveActive)
	assert.False(t, Find(tree, 7).EffectiveActive, "active but under inactive parent")
}

func TestBuildTree_Empty(t *testing.T) {
	tree := BuildTree(nil)
	assert.NotNil(t, tree)
	assert.Empty(t, tree)
	assert.Empty(t, Flatten(tree))
}

func TestFind(t *testing.T) {
	tree := BuildTree(sampleCategories())
	assert.Equal(t, "Accessories", Find(tree, 8).Name)
	assert.Nil(t, Find(tree, 404))
}
