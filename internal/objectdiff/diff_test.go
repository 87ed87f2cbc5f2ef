package objectdiff_test

import (
	"testing"

	"github.com/biscuitwizard/moovcs/internal/codec"
	"github.com/biscuitwizard/moovcs/internal/objectdiff"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestVerbRenameWithOverlappingAliases(t *testing.T) {
	// "look examine inspect" -> "look observe watch", same body. "look"
	// survives untouched on both sides and must not appear in any set;
	// "examine"->? and "inspect"->? pair up with the new aliases by body
	// equality since no hint was supplied.
	a := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"look", "examine", "inspect"}, Body: "tell();"},
	}}
	b := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"look", "observe", "watch"}, Body: "tell();"},
	}}

	oc := objectdiff.Diff("$thing", a, b, nil, nil)

	require.False(t, oc.VerbsDeleted.Has("look"))
	require.False(t, oc.VerbsAdded.Has("look"))
	require.False(t, oc.VerbsModified.Has("look"))
	require.NotContains(t, oc.VerbsRenamed, "look")

	require.Len(t, oc.VerbsRenamed, 2)
	require.Empty(t, oc.VerbsDeleted)
	require.Empty(t, oc.VerbsAdded)
	for from, to := range oc.VerbsRenamed {
		require.Contains(t, []string{"examine", "inspect"}, from)
		require.Contains(t, []string{"observe", "watch"}, to)
	}
}

func TestVerbRenameHintOverridesBodyMatch(t *testing.T) {
	a := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"old"}, Body: "one();"},
	}}
	b := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"new"}, Body: "two();"},
	}}
	hints := []vcstypes.VerbRenameHint{{Object: "$thing", FromVerb: "old", ToVerb: "new"}}

	oc := objectdiff.Diff("$thing", a, b, hints, nil)

	require.Equal(t, "new", oc.VerbsRenamed["old"])
	require.Empty(t, oc.VerbsDeleted)
	require.Empty(t, oc.VerbsAdded)
}

func TestEmptyPropertyRenameSuppressed(t *testing.T) {
	// Two differently-named properties both holding the empty/cleared
	// value must never be proposed as a rename pair.
	a := &codec.ParsedObject{Name: "$thing", Properties: []codec.Property{
		{Name: "alpha", Value: ""},
	}}
	b := &codec.ParsedObject{Name: "$thing", Properties: []codec.Property{
		{Name: "beta", Value: vcstypes.ClearedValue},
	}}

	oc := objectdiff.Diff("$thing", a, b, nil, nil)

	require.Empty(t, oc.PropsRenamed)
	require.True(t, oc.PropsDeleted.Has("alpha"))
	require.True(t, oc.PropsAdded.Has("beta"))
}

func TestPropertyRenameByValueEquality(t *testing.T) {
	a := &codec.ParsedObject{Name: "$thing", Properties: []codec.Property{
		{Name: "old_name", Value: "hello"},
	}}
	b := &codec.ParsedObject{Name: "$thing", Properties: []codec.Property{
		{Name: "new_name", Value: "hello"},
	}}

	oc := objectdiff.Diff("$thing", a, b, nil, nil)

	require.Equal(t, "new_name", oc.PropsRenamed["old_name"])
	require.Empty(t, oc.PropsDeleted)
	require.Empty(t, oc.PropsAdded)
}

func TestModifiedVerbAndProperty(t *testing.T) {
	a := &codec.ParsedObject{
		Name:       "$thing",
		Verbs:      []codec.Verb{{Aliases: []string{"look"}, Body: "one();"}},
		Properties: []codec.Property{{Name: "color", Value: "red"}},
	}
	b := &codec.ParsedObject{
		Name:       "$thing",
		Verbs:      []codec.Verb{{Aliases: []string{"look"}, Body: "two();"}},
		Properties: []codec.Property{{Name: "color", Value: "blue"}},
	}

	oc := objectdiff.Diff("$thing", a, b, nil, nil)

	require.True(t, oc.VerbsModified.Has("look"))
	require.True(t, oc.PropsModified.Has("color"))
	require.Empty(t, oc.VerbsRenamed)
	require.Empty(t, oc.PropsRenamed)
}

// TestDiffStructuralEquality uses go-cmp rather than field-by-field
// assertions: StringSet is a map so cmp already compares it order-
// independently, which matters here since add/delete/modify/rename sets
// have no meaningful iteration order.
func TestDiffStructuralEquality(t *testing.T) {
	a := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"old"}, Body: "one();"},
	}}
	b := &codec.ParsedObject{Name: "$thing", Verbs: []codec.Verb{
		{Aliases: []string{"new"}, Body: "one();"},
	}}

	got := objectdiff.Diff("$thing", a, b, nil, nil)
	want := objectdiff.NewObjectChange("$thing")
	want.VerbsRenamed["old"] = "new"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvertSwapsAddedDeletedAndReversesRenames(t *testing.T) {
	c := &vcstypes.Change{
		AddedObjects:   []vcstypes.ObjectInfo{{Type: vcstypes.Moo, Name: "$a"}},
		DeletedObjects: []vcstypes.ObjectInfo{{Type: vcstypes.Moo, Name: "$b"}},
		RenamedObjects: []vcstypes.RenamedObject{
			{From: vcstypes.ObjectInfo{Name: "$old"}, To: vcstypes.ObjectInfo{Name: "$new"}},
		},
		VerbRenameHints: []vcstypes.VerbRenameHint{
			{Object: "$thing", FromVerb: "look", ToVerb: "observe"},
		},
	}

	inv := objectdiff.Invert(c)

	require.Equal(t, c.DeletedObjects, inv.AddedObjects)
	require.Equal(t, c.AddedObjects, inv.DeletedObjects)
	require.Equal(t, "$new", inv.RenamedObjects[0].From.Name)
	require.Equal(t, "$old", inv.RenamedObjects[0].To.Name)
	require.Equal(t, "observe", inv.VerbRenameHints[0].FromVerb)
	require.Equal(t, "look", inv.VerbRenameHints[0].ToVerb)
}
