package ops_test

import (
	"testing"

	"github.com/biscuitwizard/moovcs/internal/ops"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/stretchr/testify/require"
)

// localChange returns the current Local change. ChangeList only reads the
// workspace, which never holds a Local change, so the change is stashed to
// read it back as Idle and then switched back in as the Local top.
func localChange(t *testing.T, e *ops.Engine) *vcstypes.Change {
	t.Helper()
	_, err := e.ChangeStash()
	require.NoError(t, err)
	idle := vcstypes.StatusIdle
	list, err := e.ChangeList(&idle)
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, err = e.ChangeSwitch(list[0].ID)
	require.NoError(t, err)
	return list[0]
}

// TestObjectDeletePlain deletes an object that was created and merged in an
// earlier change, so the delete lands in a fresh Local change with no
// AddedObjects/RenamedObjects entry for it.
func TestObjectDeletePlain(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("room", dump("room", "return 1;", "look"))
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	res, err := e.ObjectDelete("room")
	require.NoError(t, err)
	require.Equal(t, "deleted", res.Message)

	c := localChange(t, e)
	require.Len(t, c.DeletedObjects, 1)
	require.Equal(t, "room", c.DeletedObjects[0].Name)
	require.Empty(t, c.RenamedObjects)
}

// TestObjectDeleteAddedThenDeletedSameChange deletes an object within the
// same still-Local change that created it: the add and the delete cancel
// out, leaving no bookkeeping trace at all.
func TestObjectDeleteAddedThenDeletedSameChange(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("room", dump("room", "return 1;", "look"))
	require.NoError(t, err)

	res, err := e.ObjectDelete("room")
	require.NoError(t, err)
	require.Equal(t, "deleted", res.Message)

	c := localChange(t, e)
	require.Empty(t, c.AddedObjects)
	require.Empty(t, c.DeletedObjects)
	require.Empty(t, c.RenamedObjects)

	_, _, _, err = e.ObjectGet("room")
	require.Error(t, err)
}

// TestObjectDeleteRenameThenDelete mirrors
// original_source/vcs-worker/tests/operations/object/rename_edge_cases_tests.rs::
// test_rename_then_delete: renaming an object and then deleting it under its
// new name must record the deletion under the ORIGINAL name and leave no
// dangling rename entry, since the eager rename already moved the ref.
func TestObjectDeleteRenameThenDelete(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ObjectUpdate("rename_then_del", dump("rename_then_del", "return 1;", "look"))
	require.NoError(t, err)
	_, err = e.ChangeSubmit()
	require.NoError(t, err)

	_, err = e.ObjectRename("rename_then_del", "renamed_obj")
	require.NoError(t, err)

	res, err := e.ObjectDelete("renamed_obj")
	require.NoError(t, err)
	require.Equal(t, "deleted", res.Message)

	c := localChange(t, e)
	require.Len(t, c.RenamedObjects, 0)
	require.Len(t, c.DeletedObjects, 1)
	require.Equal(t, "rename_then_del", c.DeletedObjects[0].Name)

	_, _, _, err = e.ObjectGet("renamed_obj")
	require.Error(t, err)
	_, _, _, err = e.ObjectGet("rename_then_del")
	require.Error(t, err)
}
