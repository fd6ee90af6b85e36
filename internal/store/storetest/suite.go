// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/Syncenum/internal/domain"
	"github.com/Ning0612/Syncenum/internal/store"
)

// Factory creates an empty store; the suite closes it
type Factory func(t *testing.T) store.Store

// Run executes the suite
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"DirectoryStateRoundTrip", testDirectoryState},
		{"RecordRoundTrip", testRecordRoundTrip},
		{"UpsertOverwrites", testUpsertOverwrites},
		{"QueryChildrenSortedAndWindowed", testQueryChildren},
		{"QueryFavoritesAndTagged", testQueryWorkingSet},
		{"QueryVisible", testQueryVisible},
		{"DeleteRecordsNotIn", testDeleteRecordsNotIn},
		{"DeleteRecord", testDeleteRecord},
		{"DeleteTree", testDeleteTree},
		{"RenameMovesRecord", testRename},
		{"AccountsIsolated", testAccountsIsolated},
		{"PurgeAccount", testPurgeAccount},
		{"RejectsMissingID", testMissingID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

const acct = "alice"

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

func record(id, parent, name string) domain.MetadataRecord {
	return domain.MetadataRecord{
		Account:    acct,
		FileID:     id,
		ParentPath: parent,
		Name:       name,
		ETag:       "etag-" + id,
		Size:       int64(len(name)) * 100,
		ModTime:    baseTime,
	}
}

func ids(recs []domain.MetadataRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.FileID)
	}
	return out
}

func testDirectoryState(t *testing.T, s store.Store) {
	ctx := context.Background()

	got, err := s.GetDirectoryState(ctx, acct, "/Photos")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertDirectoryState(ctx, domain.DirectoryState{Account: acct, Path: "/Photos/", ETag: "e1"}))
	require.NoError(t, s.UpsertDirectoryState(ctx, domain.DirectoryState{Account: acct, Path: "/Photos", ETag: "e2"}))

	got, err = s.GetDirectoryState(ctx, acct, "/Photos")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "e2", got.ETag)
	assert.Equal(t, "/Photos", got.Path)
	assert.False(t, got.UpdatedAt.IsZero())
}

func testRecordRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := record("X", "/Photos", "a.jpg")
	rec.Permissions = "RGDNV"
	rec.RichWorkspace = "# readme"
	rec.Session = "upload-1"
	rec.Favorite = true
	rec.Tags = []string{"red", "work"}
	rec.IsDir = false

	require.NoError(t, s.UpsertRecord(ctx, rec))

	got, err := s.GetRecord(ctx, acct, "X")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ETag, got.ETag)
	assert.Equal(t, rec.Size, got.Size)
	assert.True(t, rec.ModTime.Equal(got.ModTime), "mod time %v != %v", got.ModTime, rec.ModTime)
	assert.Equal(t, rec.Permissions, got.Permissions)
	assert.Equal(t, rec.RichWorkspace, got.RichWorkspace)
	assert.Equal(t, rec.Session, got.Session)
	assert.True(t, got.Favorite)
	assert.Equal(t, []string{"red", "work"}, got.Tags)

	missing, err := s.GetRecord(ctx, acct, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUpsertOverwrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := record("X", "/Photos", "a.jpg")
	require.NoError(t, s.UpsertRecord(ctx, rec))

	rec.ETag = "changed"
	rec.Size = 42
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{rec}))

	got, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/Photos"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "changed", got[0].ETag)
	assert.Equal(t, int64(42), got[0].Size)
}

func testQueryChildren(t *testing.T, s store.Store) {
	ctx := context.Background()
	var recs []domain.MetadataRecord
	for i := 9; i >= 0; i-- {
		recs = append(recs, record(fmt.Sprintf("id%d", i), "/Photos", fmt.Sprintf("img%02d.jpg", i)))
	}
	recs = append(recs, record("other", "/Docs", "a.txt"))
	recs = append(recs, record("nested", "/Photos/Trip", "b.jpg"))
	require.NoError(t, s.UpsertRecords(ctx, recs))

	all, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/Photos"})
	require.NoError(t, err)
	require.Len(t, all, 10)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}

	window, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/Photos", Offset: 4, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"id4", "id5", "id6"}, ids(window))

	tail, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/Photos", Offset: 8, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"id8", "id9"}, ids(tail))

	past, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/Photos", Offset: 20, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testQueryWorkingSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	fav := record("fav", "/a", "fav")
	fav.Favorite = true
	tagged := record("tag", "/b", "tag")
	tagged.Tags = []string{"blue"}
	both := record("both", "/c", "both")
	both.Favorite = true
	both.Tags = []string{"red"}
	plain := record("plain", "/d", "plain")
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{fav, tagged, both, plain}))

	favs, err := s.QueryRecords(ctx, store.Query{Account: acct, Favorite: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fav", "both"}, ids(favs))

	tags, err := s.QueryRecords(ctx, store.Query{Account: acct, Tagged: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tag", "both"}, ids(tags))

	// Clearing tags removes the record from the tagged view
	tagged.Tags = nil
	require.NoError(t, s.UpsertRecord(ctx, tagged))
	tags, err = s.QueryRecords(ctx, store.Query{Account: acct, Tagged: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"both"}, ids(tags))
}

func testQueryVisible(t *testing.T, s store.Store) {
	ctx := context.Background()
	enc := record("enc", "/p", "enc")
	enc.Encrypted = true
	mine := record("mine", "/p", "mine")
	mine.Session = "ext"
	busy := record("busy", "/p", "busy")
	busy.Session = "other"
	idle := record("idle", "/p", "idle")
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{enc, mine, busy, idle}))

	got, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/p", Visible: true, Session: "ext"})
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "mine"}, ids(got))

	all, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/p"})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testDeleteRecordsNotIn(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{
		record("A", "/dir", "a"),
		record("B", "/dir", "b"),
		record("C", "/dir", "c"),
		record("D", "/elsewhere", "d"),
	}))

	n, err := s.DeleteRecordsNotIn(ctx, acct, "/dir", []string{"A", "C"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/dir"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, ids(got))

	other, err := s.GetRecord(ctx, acct, "D")
	require.NoError(t, err)
	assert.NotNil(t, other)

	n, err = s.DeleteRecordsNotIn(ctx, acct, "/dir", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testDeleteRecord(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertRecord(ctx, record("A", "/dir", "a")))
	require.NoError(t, s.DeleteRecord(ctx, acct, "A"))
	require.NoError(t, s.DeleteRecord(ctx, acct, "A"))

	got, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/dir"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDeleteTree(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{
		record("trip", "/Photos", "Trip"),
		record("t1", "/Photos/Trip", "1.jpg"),
		record("t2", "/Photos/Trip/Day1", "2.jpg"),
		record("sib", "/Photos/Trip2", "3.jpg"),
	}))
	require.NoError(t, s.UpsertDirectoryState(ctx, domain.DirectoryState{Account: acct, Path: "/Photos/Trip", ETag: "x"}))
	require.NoError(t, s.UpsertDirectoryState(ctx, domain.DirectoryState{Account: acct, Path: "/Photos/Trip2", ETag: "y"}))

	require.NoError(t, s.DeleteTree(ctx, acct, "/Photos/Trip"))

	for _, id := range []string{"t1", "t2"} {
		got, err := s.GetRecord(ctx, acct, id)
		require.NoError(t, err)
		assert.Nil(t, got, "record %s should be gone", id)
	}
	for _, id := range []string{"trip", "sib"} {
		got, err := s.GetRecord(ctx, acct, id)
		require.NoError(t, err)
		assert.NotNil(t, got, "record %s should remain", id)
	}

	st, err := s.GetDirectoryState(ctx, acct, "/Photos/Trip")
	require.NoError(t, err)
	assert.Nil(t, st)
	st, err = s.GetDirectoryState(ctx, acct, "/Photos/Trip2")
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func testRename(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec := record("X", "/old", "a.jpg")
	require.NoError(t, s.UpsertRecord(ctx, rec))

	rec.ParentPath = "/new"
	rec.Name = "b.jpg"
	require.NoError(t, s.UpsertRecord(ctx, rec))

	old, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/old"})
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/new"})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "b.jpg", moved[0].Name)
}

func testAccountsIsolated(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := record("X", "/dir", "a")
	b := record("X", "/dir", "b")
	b.Account = "bob"
	require.NoError(t, s.UpsertRecords(ctx, []domain.MetadataRecord{a, b}))

	got, err := s.QueryRecords(ctx, store.Query{Account: acct, ParentPath: "/dir"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)

	_, err = s.DeleteRecordsNotIn(ctx, "bob", "/dir", nil)
	require.NoError(t, err)

	still, err := s.GetRecord(ctx, acct, "X")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func testPurgeAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpsertRecord(ctx, record("X", "/dir", "a")))
	require.NoError(t, s.UpsertDirectoryState(ctx, domain.DirectoryState{Account: acct, Path: "/dir", ETag: "e"}))

	require.NoError(t, s.PurgeAccount(ctx, acct))

	rec, err := s.GetRecord(ctx, acct, "X")
	require.NoError(t, err)
	assert.Nil(t, rec)
	st, err := s.GetDirectoryState(ctx, acct, "/dir")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func testMissingID(t *testing.T, s store.Store) {
	err := s.UpsertRecord(context.Background(), record("", "/dir", "a"))
	assert.Error(t, err)
}
