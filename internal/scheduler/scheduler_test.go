package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sms-engine/internal/flowcontrol"
	"sms-engine/internal/queue"
	"sms-engine/internal/soundtrack"
)

func singleSoundTrack() *soundtrack.Soundtrack {
	st := soundtrack.New()
	st.Sounds["kick"] = soundtrack.SoundDescriptor{File: "kick.ogg"}
	st.Nodes["intro"] = soundtrack.Node{Kind: soundtrack.NodeSound, SoundName: "kick"}
	st.Flows["intro"] = soundtrack.Flow{RootNode: "intro", DefaultBus: "main"}
	return st
}

func TestScheduler_StartThenAdvanceEmitsVoiceRequest(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())

	ok := sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	require.True(t, ok)
	assert.True(t, sched.IsLive("intro"))

	reqs := sched.Advance(0, 512, 0)
	require.Len(t, reqs, 1)
	assert.Equal(t, "kick", reqs[0].SoundName)
	assert.Equal(t, "intro", reqs[0].FlowName)

	// Already-emitted leaves don't repeat on a second Advance.
	assert.Empty(t, sched.Advance(512, 512, 0))
}

func TestScheduler_StartTwiceReturnsFalse(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())

	assert.True(t, sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0))
	assert.False(t, sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0))
}

func TestScheduler_StartUnknownFlowReturnsFalse(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())
	assert.False(t, sched.Start("missing", 1, 0, queue.CurveLinear, 48000, 0))
}

func TestScheduler_CompleteSoleLeafStopsFlow(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	reqs := sched.Advance(0, 512, 0)
	require.Len(t, reqs, 1)

	name, finished := sched.Complete(reqs[0].Token, 512)
	assert.Equal(t, "intro", name)
	assert.True(t, finished)
	assert.False(t, sched.IsLive("intro"))
}

func TestScheduler_KillRemovesFlowImmediately(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	sched.Kill("intro")
	assert.False(t, sched.IsLive("intro"))
}

func sequenceTrack(items ...soundtrack.SequenceItem) *soundtrack.Soundtrack {
	st := soundtrack.New()
	st.Sounds["a"] = soundtrack.SoundDescriptor{File: "a.ogg"}
	st.Sounds["b"] = soundtrack.SoundDescriptor{File: "b.ogg"}
	st.Sequences["seq"] = soundtrack.Sequence{Items: items}
	st.Nodes["intro"] = soundtrack.Node{Kind: soundtrack.NodeSequence, SequenceName: "seq"}
	st.Flows["intro"] = soundtrack.Flow{RootNode: "intro", DefaultBus: "main"}
	return st
}

func TestScheduler_SequenceSchedulesEveryItemUpfrontAtItsOwnOffset(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(sequenceTrack(
		soundtrack.SequenceItem{SoundName: "a", Offset: 0},
		soundtrack.SequenceItem{SoundName: "b", Offset: 1000, FadeIn: 200},
	))

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)

	// A horizon wide enough to cross both items' deadlines in one Advance
	// call proves both were scheduled up front rather than "b" waiting for
	// "a" to Complete first.
	reqs := sched.Advance(0, 512, 2000)
	require.Len(t, reqs, 2)

	byName := map[string]VoiceRequest{}
	for _, r := range reqs {
		byName[r.SoundName] = r
	}
	assert.Equal(t, int64(0), byName["a"].DeadlineFrame)
	assert.Equal(t, int64(1000), byName["b"].DeadlineFrame)
	assert.Equal(t, int64(200), byName["b"].FadeInFrames)
}

func TestScheduler_SequenceComputesFadeOutOverlapFromNextItem(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(sequenceTrack(
		soundtrack.SequenceItem{SoundName: "a", Offset: 0, FadeOut: 300},
		soundtrack.SequenceItem{SoundName: "b", Offset: 1000},
	))

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	reqs := sched.Advance(0, 512, 2000)
	require.Len(t, reqs, 2)

	var a VoiceRequest
	for _, r := range reqs {
		if r.SoundName == "a" {
			a = r
		}
	}
	assert.Equal(t, int64(300), a.FadeOutFrames)
	assert.Equal(t, int64(700), a.FadeOutAtFrame, "overlap window starts FadeOut frames before the next item's deadline")
}

func TestScheduler_SequenceFlowStaysLiveUntilEveryItemCompletes(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(sequenceTrack(
		soundtrack.SequenceItem{SoundName: "a", Offset: 0},
		soundtrack.SequenceItem{SoundName: "b", Offset: 100},
	))

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	reqs := sched.Advance(0, 512, 2000)
	require.Len(t, reqs, 2)

	_, finished := sched.Complete(reqs[0].Token, 512)
	assert.False(t, finished, "flow must stay live until every sequence item has completed")
	assert.True(t, sched.IsLive("intro"))

	_, finished = sched.Complete(reqs[1].Token, 600)
	assert.True(t, finished)
	assert.False(t, sched.IsLive("intro"))
}

func TestScheduler_FadeOutStopsFlowOnceEnvelopeReachesZero(t *testing.T) {
	sched := New(flowcontrol.NewTable(), 1)
	sched.ReplaceSoundtrack(singleSoundTrack())

	sched.Start("intro", 1, 0, queue.CurveLinear, 48000, 0)
	sched.FadeOut("intro", 100*time.Millisecond, queue.CurveLinear, 48000)

	// 100ms at 48kHz is 4800 frames; step in 512-frame blocks until done.
	var stopped []string
	for i := 0; i < 20 && sched.IsLive("intro"); i++ {
		stopped = sched.AdvanceEnvelopes(512)
	}
	assert.Contains(t, stopped, "intro")
	assert.False(t, sched.IsLive("intro"))
}
