package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/dashabr/internal/abr/model"
)

type fakeSink struct {
	state   SinkState
	ranges  []Range
	removed []Range
}

func newFakeSink() *fakeSink { return &fakeSink{state: SinkStateOpen} }

func (s *fakeSink) Open(mime, codecs string) error { s.state = SinkStateOpen; return nil }
func (s *fakeSink) StartAppend(data []byte)        {}

// StartRemove applies the removal immediately (this fake has no async
// pending-op model of its own; TrackPipeline callers drive completion
// synchronously via the same tick that issued it).
func (s *fakeSink) StartRemove(start, end float64) {
	s.removed = append(s.removed, Range{Start: start, End: end})
	var out []Range
	for _, r := range s.ranges {
		switch {
		case r.End <= start || r.Start >= end:
			out = append(out, r)
		case r.Start < start && r.End > end:
			out = append(out, Range{Start: r.Start, End: start}, Range{Start: end, End: r.End})
		case r.Start < start:
			out = append(out, Range{Start: r.Start, End: start})
		case r.End > end:
			out = append(out, Range{Start: end, End: r.End})
		}
	}
	s.ranges = out
}
func (s *fakeSink) Buffered() []Range                    { return append([]Range(nil), s.ranges...) }
func (s *fakeSink) Abort()                               {}
func (s *fakeSink) ChangeType(mime, codecs string) error { return nil }
func (s *fakeSink) Close()                               { s.state = SinkStateClosed }
func (s *fakeSink) State() SinkState                     { return s.state }

type fakeStarter struct {
	started []*model.DownloadTask
}

func (f *fakeStarter) StartFetch(task *model.DownloadTask) {
	f.started = append(f.started, task)
}

func buildRep(id string, bitrate int64, numSegments int, duration float64) *model.Representation {
	var refs []*model.SegmentReference
	for i := 0; i < numSegments; i++ {
		n := int64(i)
		start := float64(i) * duration
		refs = append(refs, model.NewSegmentReference(n, start, start+duration, id, func(ref *model.SegmentReference) string {
			return fmt.Sprintf("http://seg/%s/%d", ref.RepresentationID, ref.SegmentNumber)
		}))
	}
	return &model.Representation{
		ID:          id,
		Bitrate:     bitrate,
		MimeType:    "video/mp4",
		SegmentList: model.NewSegmentIndex(refs),
	}
}

func newTestPipeline(cfg Config) (*TrackPipeline, *fakeSink, *fakeStarter) {
	sink := newFakeSink()
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)
	p.SetStreamingActive(true)
	return p, sink, starter
}

func TestShouldStartNewDownload_AdmitsWithinBudget(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	assert.True(t, p.ShouldStartNewDownload())
}

func TestShouldStartNewDownload_RejectsWhenBufferFull(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: cfg.BufferingTarget + 10}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)
	p.SetStreamingActive(true)
	assert.False(t, p.ShouldStartNewDownload())
}

func TestShouldStartNewDownload_RespectsMaxConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentDownloads = 1
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToDownload = &zero
	n, ok := p.NextSegmentNumber()
	require.True(t, ok)
	p.BeginDownload(p.SegmentRef(n), 0, false, 0)
	assert.False(t, p.ShouldStartNewDownload())
}

func TestShouldStartNewDownload_ManagedSinkCapsAtOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ManagedSink = true
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToDownload = &zero
	p.BeginDownload(p.SegmentRef(0), 0, false, 0)
	assert.False(t, p.ShouldStartNewDownload())
}

func TestNextSegmentNumber_AdvancesPastInFlightAndBlacklisted(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToDownload = &zero
	p.blacklistedSegments[0] = true
	p.blacklistedSegments[1] = true

	n, ok := p.NextSegmentNumber()
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestNextSegmentNumber_ExhaustedReturnsFalse(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	last := p.CurrentRepresentation().SegmentList.Last().SegmentNumber + 1
	p.nextSegmentToDownload = &last
	_, ok := p.NextSegmentNumber()
	assert.False(t, ok)
}

func TestBeginDownload_BlacklistedURLEnqueuesSkipInstead(t *testing.T) {
	cfg := DefaultConfig()
	p, _, starter := newTestPipeline(cfg)
	ref := p.SegmentRef(5)
	url := model.URI(ref)
	p.blacklistedURLs[url] = true

	task := p.BeginDownload(ref, 0, false, 0)
	assert.Nil(t, task)
	assert.Empty(t, starter.started)
	require.Len(t, p.appendQueue, 1)
	assert.True(t, p.appendQueue[0].Skipped())
	assert.Equal(t, int64(5), p.appendQueue[0].SegmentNumber)
}

func TestCompleteDownload_EnqueuesForAppendAndAdvancesDownloadPointer(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(0)
	zero := int64(0)
	p.nextSegmentToDownload = &zero
	task := p.BeginDownload(ref, 0, false, 0)
	require.NotNil(t, task)

	p.CompleteDownload(task, FetchResult{Bytes: []byte("data")})
	require.Len(t, p.appendQueue, 1)
	assert.Equal(t, int64(0), p.appendQueue[0].SegmentNumber)
	assert.Equal(t, int64(1), *p.nextSegmentToDownload)
	assert.Empty(t, p.downloadPipeline)
}

func TestFailDownload_404BlacklistsURLAndSkips(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(3)
	task := p.BeginDownload(ref, 0, false, 0)
	require.NotNil(t, task)

	err := p.FailDownload(task, 404, 100, assertErr)
	require.Error(t, err)
	assert.True(t, p.blacklistedURLs[task.URL])
	require.Len(t, p.appendQueue, 1)
	assert.True(t, p.appendQueue[0].Skipped())
}

func TestFailDownload_NearTimeoutBlacklistsSegmentNumber(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(7)
	task := p.BeginDownload(ref, 0, false, 0)
	require.NotNil(t, task)

	err := p.FailDownload(task, 0, 0.85*cfg.SegmentTimeoutMs, assertErr)
	require.Error(t, err)
	assert.True(t, p.blacklistedSegments[7])
	require.Len(t, p.appendQueue, 1)
}

func TestFailDownload_OrdinaryTransientLeavesNoBlacklist(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(8)
	task := p.BeginDownload(ref, 0, false, 0)
	require.NotNil(t, task)

	err := p.FailDownload(task, 0, 10, assertErr)
	require.Error(t, err)
	assert.Empty(t, p.appendQueue)
	assert.False(t, p.blacklistedSegments[8])
}

func TestProcessAppendQueue_SkipsZeroByteMarkersWithoutSinkAppend(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToAppend = &zero
	p.appendQueue = []*model.QueuedSegment{{SegmentNumber: 0}, {SegmentNumber: 1, Data: []byte("x"), Duration: 4}}

	action := p.ProcessAppendQueue(false, true)
	require.NotNil(t, action)
	assert.Equal(t, int64(1), action.Segment.SegmentNumber)
	assert.Equal(t, int64(1), *p.nextSegmentToAppend)
}

func TestProcessAppendQueue_WaitsWhenExpectedSegmentMissing(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToAppend = &zero
	p.appendQueue = []*model.QueuedSegment{{SegmentNumber: 1, Data: []byte("x")}}

	action := p.ProcessAppendQueue(false, true)
	assert.Nil(t, action)
	assert.Equal(t, int64(0), *p.nextSegmentToAppend)
}

func TestProcessAppendQueue_ResetsOnLostSegmentPastThreshold(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	five := int64(5)
	p.nextSegmentToAppend = &zero
	p.nextSegmentToDownload = &five
	p.appendQueue = []*model.QueuedSegment{
		{SegmentNumber: 1, Data: []byte("x")},
		{SegmentNumber: 2, Data: []byte("x")},
		{SegmentNumber: 3, Data: []byte("x")},
		{SegmentNumber: 4, Data: []byte("x")},
	}

	action := p.ProcessAppendQueue(false, true)
	assert.Nil(t, action)
	assert.Empty(t, p.appendQueue)
	assert.Equal(t, int64(5), *p.nextSegmentToAppend)
}

func TestOnAppendComplete_SuccessRecordsBufferedSegmentAndAdvances(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToAppend = &zero
	p.nextSegmentToDownload = &zero
	seg := &model.QueuedSegment{SegmentNumber: 0, Data: []byte("x"), Duration: 4, Bitrate: 400_000}
	p.appendQueue = []*model.QueuedSegment{seg}

	action := p.ProcessAppendQueue(false, true)
	require.NotNil(t, action)
	p.OnAppendComplete(action, AppendOK)

	assert.Equal(t, int64(1), *p.nextSegmentToAppend)
	assert.Equal(t, int64(1), *p.nextSegmentToDownload)
	info, ok := p.bufferedSegments[0]
	require.True(t, ok)
	assert.Equal(t, 0.0, info.StartTime)
	assert.Equal(t, 4.0, info.EndTime)
}

func TestOnAppendComplete_QuotaExceededReinsertsAtHeadAndBeginsRecovery(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	zero := int64(0)
	p.nextSegmentToAppend = &zero
	seg := &model.QueuedSegment{SegmentNumber: 0, Data: []byte("x"), Duration: 4}
	p.appendQueue = []*model.QueuedSegment{seg}

	action := p.ProcessAppendQueue(false, true)
	require.NotNil(t, action)
	p.OnAppendComplete(action, AppendQuotaExceeded)

	require.Len(t, p.appendQueue, 1)
	assert.Equal(t, seg, p.appendQueue[0])
	assert.True(t, p.InQuotaRecovery())
}

func TestQuotaRecovery_FullCycleShrinksTargetAndResetsPointers(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	p.bufferedSegments[10] = &model.BufferedSegmentInfo{SegmentNumber: 10, StartTime: 40, EndTime: 44}
	p.beginQuotaRecovery()
	require.True(t, p.InQuotaRecovery())

	newTarget, ready := p.AdvanceQuotaRecovery(true, 30, 70)
	require.True(t, ready)
	assert.InDelta(t, 56.0, newTarget, 0.001) // max(10, 70*0.8)

	// second call is idempotent (already in quotaCritical)
	_, ready2 := p.AdvanceQuotaRecovery(true, 30, 70)
	assert.False(t, ready2)

	reschedule := p.EndQuotaRecovery(5)
	assert.True(t, reschedule)
	assert.False(t, p.InQuotaRecovery())
}

func TestQuotaRecovery_ReentrantBeginIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	p.beginQuotaRecovery()
	p.criticalLevel = 42
	p.beginQuotaRecovery() // should not reset quotaIdleRetries / state
	assert.Equal(t, quotaDraining, p.quota)
}

func TestReplacementCandidates_FiltersByDeadlineAndBitrate(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	hi := buildRep("hi", 6_000_000, 100, 4)
	p.SetRepresentations([]*model.Representation{p.representations[0], hi}, 1)
	p.avgSegmentDuration = 4

	p.bufferedSegments[40] = &model.BufferedSegmentInfo{SegmentNumber: 40, StartTime: 160, EndTime: 164, Bitrate: 1_000_000}
	p.bufferedSegments[41] = &model.BufferedSegmentInfo{SegmentNumber: 41, StartTime: 164, EndTime: 168, Bitrate: 1_000_000}
	p.bufferedSegments[42] = &model.BufferedSegmentInfo{SegmentNumber: 42, StartTime: 168, EndTime: 172, Bitrate: 1_000_000}

	candidates := p.ReplacementCandidates(160) // threshold = 160 + 4*1.5 = 166
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(42), candidates[0].SegmentNumber)
}

func TestReplacementCandidates_SkipsAlreadyInProgress(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	hi := buildRep("hi", 6_000_000, 100, 4)
	p.SetRepresentations([]*model.Representation{p.representations[0], hi}, 1)
	p.bufferedSegments[42] = &model.BufferedSegmentInfo{SegmentNumber: 42, StartTime: 168, EndTime: 172, Bitrate: 1_000_000}
	p.replacementsInProgress[42] = true

	candidates := p.ReplacementCandidates(160)
	assert.Empty(t, candidates)
}

func TestReplacementQueue_SuccessfulRoundTripUpdatesBufferedInfo(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(2)
	p.bufferedSegments[2] = &model.BufferedSegmentInfo{SegmentNumber: 2, StartTime: ref.StartTime, EndTime: ref.EndTime, Bitrate: 400_000}
	p.replacementQueue = []*model.ReplacementTask{{SegmentNumber: 2, Data: []byte("hi-quality"), Ref: ref}}

	action := p.ProcessReplacementQueue(true)
	require.NotNil(t, action)
	assert.True(t, action.IsRemovePhase())

	appendAction := p.OnReplacementRemoveComplete(action, nil)
	require.NotNil(t, appendAction)
	assert.False(t, appendAction.IsRemovePhase())

	p.OnReplacementAppendComplete(appendAction, AppendOK)
	assert.Empty(t, p.replacementQueue)
	info := p.bufferedSegments[2]
	require.NotNil(t, info)
	assert.Equal(t, 10, info.Size)
}

func TestReplacementQueue_RemoveFailureRestoresPriorInfo(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(2)
	prior := &model.BufferedSegmentInfo{SegmentNumber: 2, StartTime: ref.StartTime, EndTime: ref.EndTime, Bitrate: 400_000}
	p.bufferedSegments[2] = prior
	p.replacementQueue = []*model.ReplacementTask{{SegmentNumber: 2, Data: []byte("hi"), Ref: ref}}

	action := p.ProcessReplacementQueue(true)
	require.NotNil(t, action)
	result := p.OnReplacementRemoveComplete(action, assertErr)
	assert.Nil(t, result)
	assert.Equal(t, prior, p.bufferedSegments[2])
	assert.False(t, p.replacementProcessing)
}

func TestResetForSeek_PrunesOutsideWindowAndRecomputesPointers(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	p.bufferedSegments[0] = &model.BufferedSegmentInfo{SegmentNumber: 0, StartTime: 0, EndTime: 4}
	p.bufferedSegments[2] = &model.BufferedSegmentInfo{SegmentNumber: 2, StartTime: 8, EndTime: 12}
	ten := int64(10)
	p.nextSegmentToDownload = &ten
	p.appendQueue = []*model.QueuedSegment{{SegmentNumber: 9, Data: []byte("x")}}

	p.ResetForSeek(10)

	assert.Empty(t, p.appendQueue)
	_, stillThere := p.bufferedSegments[0]
	assert.False(t, stillThere, "segment entirely before the retained window should be evicted")
	require.NotNil(t, p.nextSegmentToDownload)
	assert.Equal(t, int64(2), *p.nextSegmentToDownload) // SegmentIndex.At(10) -> segment covering [8,12)
}

func TestBufferLevel_BridgesJumpableGapAndClampsToTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferingTarget = 60
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: 30}, {Start: 30.2, End: 200}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })

	level := p.BufferLevel()
	assert.InDelta(t, cfg.BufferingTarget*1.5, level, 0.001)
}

func TestBufferLevel_StopsAtNonJumpableGap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferingTarget = 60
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: 10}, {Start: 80, End: 200}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })

	level := p.BufferLevel()
	assert.InDelta(t, 10.0, level, 0.001)
}

func TestCompleteDownload_DiscardsWhenBufferOverrunsMaxAllowedOverrun(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: cfg.BufferingTarget + cfg.MaxAllowedOverrun + 1}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)
	zero := int64(0)
	p.nextSegmentToDownload = &zero
	task := p.BeginDownload(p.SegmentRef(0), 0, false, 0)
	require.NotNil(t, task)

	result := p.CompleteDownload(task, FetchResult{Bytes: []byte("data")})
	assert.True(t, result.Discarded)
	require.Len(t, p.appendQueue, 1)
	assert.True(t, p.appendQueue[0].Skipped())
	assert.Equal(t, int64(1), *p.nextSegmentToDownload)
}

func TestCompleteDownload_ReplacementThreadsCurrentBitrateOntoTask(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	ref := p.SegmentRef(2)
	task := p.BeginDownload(ref, 0, true, 2)
	require.NotNil(t, task)

	p.CompleteDownload(task, FetchResult{Bytes: []byte("x")})
	require.Len(t, p.replacementQueue, 1)
	assert.Equal(t, int64(400_000), p.replacementQueue[0].Bitrate)
}

func TestReplacementCandidates_ExcludesSegmentAlreadyUpgradedToCurrentBitrate(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(cfg)
	hi := buildRep("hi", 6_000_000, 100, 4)
	p.SetRepresentations([]*model.Representation{p.representations[0], hi}, 1)
	p.bufferedSegments[42] = &model.BufferedSegmentInfo{SegmentNumber: 42, StartTime: 168, EndTime: 172, Bitrate: 6_000_000}

	candidates := p.ReplacementCandidates(160)
	assert.Empty(t, candidates, "a segment already recorded at the current representation's bitrate must not be replaced again")
}

func TestQuotaRecovery_IssuesSinkRemovalsOutsideKeepWindow(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: 100}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)

	p.beginQuotaRecovery()
	_, ready := p.AdvanceQuotaRecovery(true, 30, 70)
	require.True(t, ready) // newTarget = max(10, 70*0.8) = 56; keepStart = 28, keepEnd = 86

	drainRemovals(p)

	require.Len(t, sink.removed, 2)
	assert.Equal(t, Range{Start: 0, End: 28}, sink.removed[0])
	assert.Equal(t, Range{Start: 86, End: 100}, sink.removed[1])
	require.Len(t, sink.ranges, 1)
	assert.Equal(t, Range{Start: 28, End: 86}, sink.ranges[0])
}

func TestResetForSeek_IssuesSinkRemovalOutsideKeepWindowEndingAtBufferingTarget(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 65, End: 85}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)

	p.ResetForSeek(10) // keep window [10-5, 10+60) = [5, 70)

	drainRemovals(p)

	require.Len(t, sink.removed, 1)
	assert.Equal(t, Range{Start: 70, End: 85}, sink.removed[0])
	require.Len(t, sink.ranges, 1)
	assert.Equal(t, Range{Start: 65, End: 70}, sink.ranges[0])
}

func TestResetForSeek_S4RetentionWindowKeepsRangeEntirelyInside(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 28, End: 70}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	rep := buildRep("lo", 400_000, 100, 4)
	p.SetRepresentations([]*model.Representation{rep}, 0)

	p.ResetForSeek(10) // keep window [5, 70)

	drainRemovals(p)

	assert.Empty(t, sink.removed)
	require.Len(t, sink.ranges, 1)
	assert.Equal(t, Range{Start: 28, End: 70}, sink.ranges[0])
}

func TestPruneIfDue_QueuesRemovalWhenBehindBufferBehindThreshold(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: 100}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })

	p.PruneIfDue(10_000, 50) // playhead 50, range start 0: 50-0=50 > bufferBehind(5)

	action := p.ProcessPendingRemoval(true)
	require.NotNil(t, action)
	assert.Equal(t, Range{Start: 0, End: 45}, action.Range) // cutoff = 50 - 5
}

func TestPruneIfDue_NoOpBeforeIntervalElapsed(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 0, End: 100}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })

	p.PruneIfDue(100, 50) // nowMs(100) - lastPruneMs(0) = 100 < PruningIntervalMs(5000)
	assert.Nil(t, p.ProcessPendingRemoval(true))
}

func TestPruneIfDue_NoOpWhenWithinBufferBehind(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	sink.ranges = []Range{{Start: 48, End: 100}}
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })

	p.PruneIfDue(10_000, 50) // 50-48=2 <= bufferBehind(5)
	assert.Nil(t, p.ProcessPendingRemoval(true))
}

func drainRemovals(p *TrackPipeline) {
	for {
		action := p.ProcessPendingRemoval(true)
		if action == nil {
			return
		}
		p.OnPendingRemovalComplete(action)
	}
}

func TestSyncBufferedSegments_DropsEntriesWithNoOverlap(t *testing.T) {
	cfg := DefaultConfig()
	sink := newFakeSink()
	starter := &fakeStarter{}
	p := New(nil, model.TrackVideo, cfg, sink, starter, func() float64 { return 0 })
	p.bufferedSegments[1] = &model.BufferedSegmentInfo{SegmentNumber: 1, StartTime: 4, EndTime: 8}
	p.bufferedSegments[2] = &model.BufferedSegmentInfo{SegmentNumber: 2, StartTime: 8, EndTime: 12}
	sink.ranges = []Range{{Start: 0, End: 8}}

	p.SyncBufferedSegments()
	_, ok1 := p.bufferedSegments[1]
	_, ok2 := p.bufferedSegments[2]
	assert.True(t, ok1)
	assert.False(t, ok2)
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "injected test error" }
