package ops_test

import (
	"testing"

	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/stretchr/testify/require"
)

// TestDuplicateContentIsDeduped covers the scenario where two differently
// named objects serialize to byte-identical canonical text: they must share
// one stored blob.
func TestDuplicateContentIsDeduped(t *testing.T) {
	e, _ := newTestEngine(t)
	text := dump("thing", "return 1;", "look")

	_, err := e.ObjectUpdate("a", text)
	require.NoError(t, err)
	_, err = e.ObjectUpdate("b", text)
	require.NoError(t, err)

	status, err := e.Status()
	require.NoError(t, err)
	require.Equal(t, 1, status.ObjectCount)
}

// TestSupersededBlobIsTrimmedWithinAChange covers re-editing the same object
// twice inside one still-Local change: the first edit's blob must not linger
// once nothing references it any more.
func TestSupersededBlobIsTrimmedWithinAChange(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("a", dump("a", "return 1;", "look"))
	require.NoError(t, err)
	status, err := e.Status()
	require.NoError(t, err)
	require.Equal(t, 1, status.ObjectCount)

	_, err = e.ObjectUpdate("a", dump("a", "return 2;", "look"))
	require.NoError(t, err)

	status, err = e.Status()
	require.NoError(t, err)
	require.Equal(t, 1, status.ObjectCount, "superseded blob from the first edit should be trimmed")

	text, _, version, err := e.ObjectGet("a")
	require.NoError(t, err)
	require.Equal(t, uint32(1), version, "re-edit within a change reuses the version")
	require.Contains(t, text, "return 2;")
}

// TestRefReuseAcrossNames covers renaming a then giving a fresh object the
// freed-up name a: the two series must not collide.
func TestRefReuseAcrossNames(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("a", dump("a", "return 1;", "look"))
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	_, err = e.ObjectRename("a", "b")
	require.NoError(t, err)

	_, err = e.ObjectUpdate("a", dump("a", "return 99;", "look"))
	require.NoError(t, err)

	textB, _, _, err := e.ObjectGet("b")
	require.NoError(t, err)
	require.Contains(t, textB, "return 1;")

	textA, _, _, err := e.ObjectGet("a")
	require.NoError(t, err)
	require.Contains(t, textA, "return 99;")
}

// TestRenameAndModifyCollapse is spec §8's signature scenario: renaming x to
// z takes effect immediately, before the enclosing change is merged, so a
// reader must see the new name resolve and the old one vanish right away.
func TestRenameAndModifyCollapse(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("x", dump("x", "return 1;", "look"))
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	_, err = e.ObjectRename("x", "z")
	require.NoError(t, err)
	_, err = e.ObjectUpdate("z", dump("z", "return 2;", "look"))
	require.NoError(t, err)

	text, _, _, err := e.ObjectGet("z")
	require.NoError(t, err)
	require.Contains(t, text, "return 2;")

	_, _, _, err = e.ObjectGet("x")
	require.Error(t, err)
	require.Equal(t, vcserr.NotFound, vcserr.KindOf(err))
}

// TestAbandonUndoesAddsAndCleansBlobs covers spec §8's abandon scenario: a
// Local change that only ever added objects must, on abandon, leave no
// trace of those objects or their blobs behind.
func TestAbandonUndoesAddsAndCleansBlobs(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("a", dump("a", "return 1;", "look"))
	require.NoError(t, err)
	status, err := e.Status()
	require.NoError(t, err)
	require.Equal(t, 1, status.ObjectCount)

	_, err = e.ChangeAbandon()
	require.NoError(t, err)

	_, _, _, err = e.ObjectGet("a")
	require.Error(t, err)
	require.Equal(t, vcserr.NotFound, vcserr.KindOf(err))

	status, err = e.Status()
	require.NoError(t, err)
	require.Equal(t, 0, status.ObjectCount, "abandon must reclaim the orphaned blob")
}

// TestVerbRenameWithOverlappingAliasesEndToEnd covers spec §8's "overlapping
// aliases" scenario through the full history path: a verb whose aliases
// change across versions while keeping its body, with "look" kept on both sides.
func TestVerbRenameWithOverlappingAliasesEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t)

	v1 := "object thing\n" +
		"verb look examine inspect\n" +
		"return \"body-a\";\n" +
		"endverb\n" +
		"endobject\n"
	_, err := e.ObjectUpdate("thing", v1)
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	v2 := "object thing\n" +
		"verb look observe watch\n" +
		"return \"body-a\";\n" +
		"endverb\n" +
		"endobject\n"
	_, err = e.ObjectUpdate("thing", v2)
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	history, err := e.ObjectHistory("thing")
	require.NoError(t, err)

	var diffEntry *string
	for _, h := range history {
		if h.Diff != nil {
			require.False(t, h.Diff.VerbsRenamed == nil)
			require.NotContains(t, h.Diff.VerbsRenamed, "look", "look survives on both sides and must not be renamed")
			require.Equal(t, "observe", h.Diff.VerbsRenamed["examine"])
			require.Equal(t, "watch", h.Diff.VerbsRenamed["inspect"])
			msg := "found"
			diffEntry = &msg
		}
	}
	require.NotNil(t, diffEntry, "expected a Diff entry in object history")
}

// TestEmptyPropertyRenameSuppressedEndToEnd covers spec §8's suppression
// rule: two empty/cleared properties must never be paired as a rename.
func TestEmptyPropertyRenameSuppressedEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t)

	v1 := "object thing\n" +
		"property alpha = \n" +
		"endobject\n"
	_, err := e.ObjectUpdate("thing", v1)
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	v2 := "object thing\n" +
		"property beta = \n" +
		"endobject\n"
	_, err = e.ObjectUpdate("thing", v2)
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	history, err := e.ObjectHistory("thing")
	require.NoError(t, err)

	found := false
	for _, h := range history {
		if h.Diff != nil {
			require.Empty(t, h.Diff.PropsRenamed, "empty properties must never be paired as a rename")
			require.Contains(t, h.Diff.PropsDeleted, "alpha")
			require.Contains(t, h.Diff.PropsAdded, "beta")
			found = true
		}
	}
	require.True(t, found, "expected a Diff entry in object history")
}
