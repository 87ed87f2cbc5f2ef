package mootext_test

import (
	"testing"

	"github.com/biscuitwizard/moovcs/internal/codec/mootext"
	"github.com/stretchr/testify/require"
)

const sample = `object $thing
verb look examine inspect
  player:tell("It's a thing.");
endverb
property description = a thing
endobject
`

func TestParseSerializeRoundTrip(t *testing.T) {
	c := mootext.New()
	obj, err := c.Parse(sample)
	require.NoError(t, err)
	require.Equal(t, "$thing", obj.Name)
	require.Len(t, obj.Verbs, 1)
	require.Equal(t, []string{"look", "examine", "inspect"}, obj.Verbs[0].Aliases)
	require.Len(t, obj.Properties, 1)

	out, err := c.Serialize(obj)
	require.NoError(t, err)

	obj2, err := c.Parse(out)
	require.NoError(t, err)
	out2, err := c.Serialize(obj2)
	require.NoError(t, err)
	require.Equal(t, out, out2, "serialize must be deterministic across reparse")
}

func TestDigestStableAcrossEquivalentWhitespace(t *testing.T) {
	c := mootext.New()
	a, err := c.Parse("object $x\nproperty p = v\nendobject")
	require.NoError(t, err)
	b, err := c.Parse("object $x\n\nproperty p = v\n\nendobject\n")
	require.NoError(t, err)

	canonA, err := c.Serialize(a)
	require.NoError(t, err)
	canonB, err := c.Serialize(b)
	require.NoError(t, err)

	require.Equal(t, c.Digest(canonA), c.Digest(canonB))
}

func TestParseMissingEndverb(t *testing.T) {
	c := mootext.New()
	_, err := c.Parse("object $x\nverb look\nendobject")
	require.Error(t, err)
}

func TestParseRejectsMissingHeader(t *testing.T) {
	c := mootext.New()
	_, err := c.Parse("verb look\nendverb\n")
	require.Error(t, err)
}
