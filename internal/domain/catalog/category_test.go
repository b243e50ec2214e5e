package catalog

import (
	"testing"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func testTree() *CategoryTree {
	return NewCategoryTree([]Category{
		{ID: 1, Name: LocalizedText{"en": "Home"}, Slug: "home"},
		{ID: 2, ParentID: ptr(1), Name: LocalizedText{"en": "Furniture"}, Slug: "furniture"},
		{ID: 3, ParentID: ptr(2), Name: LocalizedText{"en": "Chairs"}, Slug: "chairs"},
		{ID: 4, Name: LocalizedText{"en": "Sale"}, Slug: "sale"},
		{ID: 5, ParentID: ptr(4), Name: LocalizedText{"en": "Last chance"}, Slug: "last-chance"},
		{ID: 9, ParentID: ptr(404), Name: LocalizedText{"en": "Orphan"}, Slug: "orphan"},
	})
}

func TestCategoryTree_Path(t *testing.T) {
	tree := testTree()

	t.Run("returns root to leaf", func(t *testing.T) {
		path, err := tree.Path(3)
		require.NoError(t, err)
		require.Len(t, path, 3)
		assert.Equal(t, int64(1), path[0].ID)
		assert.Equal(t, int64(3), path[2].ID)
		assert.True(t, path[0].IsRoot())
	})

	t.Run("missing category", func(t *testing.T) {
		_, err := tree.Path(77)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := tree.Path(9)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("too deep", func(t *testing.T) {
		cats := []Category{{ID: 1}}
		for i := int64(2); i <= MaxCategoryDepth+1; i++ {
			cats = append(cats, Category{ID: i, ParentID: ptr(i - 1)})
		}
		_, err := NewCategoryTree(cats).Path(MaxCategoryDepth + 1)
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestBuildBreadcrumbs(t *testing.T) {
	tree := testTree()

	t.Run("deepest chain is active", func(t *testing.T) {
		crumbs, err := BuildBreadcrumbs([]CategoryMembership{{CategoryID: 5}, {CategoryID: 3}}, tree)
		require.NoError(t, err)
		require.Len(t, crumbs, 2)
		assert.False(t, crumbs[0].Active)
		assert.True(t, crumbs[1].Active)
		assert.Equal(t, "chairs", crumbs[1].Chain[2].Slug)
	})

	t.Run("first wins a tie", func(t *testing.T) {
		crumbs, err := BuildBreadcrumbs([]CategoryMembership{{CategoryID: 2}, {CategoryID: 5}}, tree)
		require.NoError(t, err)
		assert.True(t, crumbs[0].Active)
		assert.False(t, crumbs[1].Active)
	})

	t.Run("no memberships", func(t *testing.T) {
		crumbs, err := BuildBreadcrumbs(nil, tree)
		require.NoError(t, err)
		assert.Empty(t, crumbs)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := BuildBreadcrumbs([]CategoryMembership{{CategoryID: 42}}, tree)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
