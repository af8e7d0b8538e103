package relstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertDocument_IsIdempotentOnSourceIdentity(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	d1, err := m.UpsertDocument(ctx, Document{SourceType: "local_file", SourceID: "/a.md", Title: "A", ContentHash: "h1"})
	require.NoError(t, err)
	require.NotEmpty(t, d1.ID)

	d2, err := m.UpsertDocument(ctx, Document{SourceType: "local_file", SourceID: "/a.md", Title: "A renamed", ContentHash: "h2"})
	require.NoError(t, err)
	require.Equal(t, d1.ID, d2.ID, "re-ingesting the same source identity must reuse the document id")
	require.Equal(t, "A renamed", d2.Title)
	require.Equal(t, "h2", d2.ContentHash)
}

func TestMemory_ReplaceSegments_RequiresExistingDocument(t *testing.T) {
	m := NewMemory()
	_, err := m.ReplaceSegments(context.Background(), "missing-doc", []Segment{{Content: "x"}})
	require.Error(t, err)
}

func TestMemory_ReplaceSegments_ThenListSegments_PreservesOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	doc, err := m.UpsertDocument(ctx, Document{SourceType: "local_file", SourceID: "/b.md", ContentHash: "h"})
	require.NoError(t, err)

	n, err := m.ReplaceSegments(ctx, doc.ID, []Segment{
		{Content: "second", Position: 1, ContentHash: "s2"},
		{Content: "first", Position: 0, ContentHash: "s1"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	segs, err := m.ListSegments(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	require.Equal(t, "first", segs[0].Content)
	require.Equal(t, "second", segs[1].Content)
}

func TestMemory_ListDocuments_KeysetPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := m.UpsertDocument(ctx, Document{SourceType: "local_file", SourceID: string(rune('a' + i)), ContentHash: "h"})
		require.NoError(t, err)
	}

	page1, err := m.ListDocuments(ctx, "", "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	require.NotEmpty(t, page1.Cursor)
	require.Equal(t, 5, page1.Total)

	page2, err := m.ListDocuments(ctx, "", page1.Cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Items, 2)
	require.NotEqual(t, page1.Items[0].ID, page2.Items[0].ID)

	page3, err := m.ListDocuments(ctx, "", page2.Cursor, 2)
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	require.Empty(t, page3.Cursor, "last page has no further cursor")
}

func TestCursor_EncodeDecode_RoundTrips(t *testing.T) {
	c := Cursor{ID: "doc-123", SortValue: "2026-01-01T00:00:00Z"}
	token := EncodeCursor(c)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, c, decoded)
}

func TestDecodeCursor_EmptyToken_IsZeroCursor(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Equal(t, Cursor{}, c)
}

func TestDecodeCursor_RejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-valid-base64url-json!!")
	require.Error(t, err)
}

func TestMemory_RoleAssignment_LifecycleAndAtLeast(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AssignRole(ctx, "u1", "proj-a", RoleEditor))
	roles, err := m.GetRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.True(t, roles[0].Role.AtLeast(RoleViewer))
	require.False(t, roles[0].Role.AtLeast(RoleAdmin))

	require.NoError(t, m.AssignRole(ctx, "u1", "proj-a", RoleAdmin), "re-assigning updates in place")
	roles, err = m.GetRoles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, RoleAdmin, roles[0].Role)

	require.NoError(t, m.RevokeRole(ctx, "u1", "proj-a"))
	roles, err = m.GetRoles(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, roles)

	require.NoError(t, m.DeactivateUser(ctx, "u1"))
	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.False(t, u.Active)
}

func TestMemory_Stats_AggregatesBySourceType(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	doc, err := m.UpsertDocument(ctx, Document{SourceType: "gdrive", SourceID: "f1", ContentHash: "h", ProjectID: "p1"})
	require.NoError(t, err)
	_, err = m.ReplaceSegments(ctx, doc.ID, []Segment{{Content: "a"}, {Content: "b"}})
	require.NoError(t, err)

	st, err := m.Stats(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, st.TotalDocuments)
	require.Equal(t, 2, st.TotalSegments)
	require.Equal(t, 1, st.BySourceType["gdrive"])
	require.NotNil(t, st.LastIngestedAt)
}
