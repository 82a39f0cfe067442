package main

import (
	"fmt"

	"github.com/mantonx/dashabr/internal/abr/fake"
	"github.com/mantonx/dashabr/internal/abr/model"
)

// ladderRung mirrors the teacher's BitrateLadderRung shape (generator.go),
// narrowed to what a Representation needs.
type ladderRung struct {
	id      string
	bitrate int64
	width   int
	height  int
}

// defaultVideoLadder is a device-agnostic four-rung ladder in the spirit of
// the teacher's GenerateLadder, used as demo manifest data in place of a
// real DASH MPD (out of scope per spec §1).
var defaultVideoLadder = []ladderRung{
	{"v0", 400_000, 640, 360},
	{"v1", 1_000_000, 960, 540},
	{"v2", 3_000_000, 1280, 720},
	{"v3", 6_000_000, 1920, 1080},
}

var defaultAudioLadder = []ladderRung{
	{"a0", 128_000, 0, 0},
}

// buildRepresentations constructs Representation values for ladder, each
// with a dense zero-based segment index of segmentCount segments of
// segmentDurationS seconds, registering synthetic payload bytes (sized
// proportionally to bitrate) in source so the fake FetchTransport can serve
// them.
func buildRepresentations(ladder []ladderRung, segmentCount int, segmentDurationS float64, mime, codecs string, source *fake.SegmentSource) []*model.Representation {
	reps := make([]*model.Representation, 0, len(ladder))
	urlFn := func(ref *model.SegmentReference) string {
		return fmt.Sprintf("%s/%d.m4s", ref.RepresentationID, ref.SegmentNumber)
	}
	for _, rung := range ladder {
		refs := make([]*model.SegmentReference, segmentCount)
		payloadBytes := int(float64(rung.bitrate) * segmentDurationS / 8)
		payload := make([]byte, payloadBytes)
		for i := 0; i < segmentCount; i++ {
			ref := model.NewSegmentReference(int64(i), float64(i)*segmentDurationS, float64(i+1)*segmentDurationS, rung.id, urlFn)
			refs[i] = ref
			source.Put(model.URI(ref), payload)
		}
		reps = append(reps, &model.Representation{
			ID:          rung.id,
			Bitrate:     rung.bitrate,
			Codecs:      codecs,
			MimeType:    mime,
			Width:       rung.width,
			Height:      rung.height,
			FrameRate:   30,
			SegmentList: model.NewSegmentIndex(refs),
		})
	}
	return reps
}
