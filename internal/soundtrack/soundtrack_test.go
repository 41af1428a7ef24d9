package soundtrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_ReplacesOnlyNamedEntries(t *testing.T) {
	base := New()
	base.Sounds["kick"] = SoundDescriptor{File: "kick.ogg"}
	base.Flows["intro"] = Flow{RootNode: "intro"}

	patch := New()
	patch.Sounds["kick"] = SoundDescriptor{File: "kick_v2.ogg"}
	patch.Flows["boss"] = Flow{RootNode: "boss"}

	base.Merge(patch)

	assert.Equal(t, "kick_v2.ogg", base.Sounds["kick"].File)
	assert.Contains(t, base.Flows, "intro")
	assert.Contains(t, base.Flows, "boss")
}

func TestClone_IsIndependentOfOriginal(t *testing.T) {
	base := New()
	base.Nodes["root"] = Node{Kind: NodeRandom, Children: []string{"a", "b"}}

	clone := base.Clone()
	clone.Nodes["root"] = Node{Kind: NodeRandom, Children: []string{"a", "b", "c"}}

	assert.Len(t, base.Nodes["root"].Children, 2)
	assert.Len(t, clone.Nodes["root"].Children, 3)
}

func TestClone_MutatingClonedSliceDoesNotAffectOriginal(t *testing.T) {
	base := New()
	base.Nodes["root"] = Node{Kind: NodeWeighted, WeightedChildren: []WeightedChild{{NodeName: "a", Weight: 1}}}

	clone := base.Clone()
	cloneNode := clone.Nodes["root"]
	cloneNode.WeightedChildren[0].Weight = 99
	clone.Nodes["root"] = cloneNode

	assert.Equal(t, 1.0, base.Nodes["root"].WeightedChildren[0].Weight)
}

func TestNopParser_EmptyTextIsMalformed(t *testing.T) {
	_, err := NopParser{}.ParseNew(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNopParser_ParseIntoMergesASingleFlow(t *testing.T) {
	dst := New()
	err := NopParser{}.ParseInto(dst, []byte("boss_theme"))
	assert.NoError(t, err)
	assert.Contains(t, dst.Flows, "boss_theme")
	assert.Contains(t, dst.Sounds, "boss_theme")
}

func TestNopParser_ParseIntoLeavesDstUnchangedOnError(t *testing.T) {
	dst := New()
	dst.Flows["keep"] = Flow{RootNode: "keep"}

	err := NopParser{}.ParseInto(dst, nil)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, dst.Flows, 1)
}
