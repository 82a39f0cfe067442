package session

import (
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/dashabr/internal/abr/bandwidth"
	"github.com/mantonx/dashabr/internal/abr/bola"
	"github.com/mantonx/dashabr/internal/abr/model"
	"github.com/mantonx/dashabr/internal/abr/pipeline"
	"github.com/mantonx/dashabr/internal/abr/quality"
)

// trackContext bundles one track's slice of every collaborator: its own
// BandwidthEstimator, BolaController, Selector, TrackPipeline, and sink.
// Nothing here is shared with the other track.
type trackContext struct {
	kind model.TrackKind
	log  hclog.Logger

	est      *bandwidth.Estimator
	bolaCtl  *bola.Controller
	selector *quality.Selector
	pipe     *pipeline.TrackPipeline
	sink     DrivableSink

	sinkIdle    bool
	initialized bool
	mime        string
	codecs      string

	rawRepresentations []*model.Representation
	filterOpts         quality.FilterOptions

	quotaPendingEnd bool
	quotaReadyAtMs  float64

	avgSegmentDurationS float64
}

// filteredRepresentations re-applies the two-pass filter to the last
// installed raw representation set, used whenever dimensions_changed or
// representations_changed fires.
func (tc *trackContext) filteredRepresentations() []*model.Representation {
	if tc.kind != model.TrackVideo {
		// Audio representations are never resolution-filtered.
		return tc.rawRepresentations
	}
	return quality.FilterRepresentations(tc.rawRepresentations, tc.filterOpts)
}

// fetchStarterAdapter implements pipeline.FetchStarter by running the
// fetch on a dedicated goroutine and reporting completion back into the
// run loop as a message, preserving the rule that every suspension point
// reports exactly one message and nothing in this package ever blocks.
type fetchStarterAdapter struct {
	session   *CoreSession
	track     model.TrackKind
	transport FetchTransport
}

func (a *fetchStarterAdapter) StartFetch(task *model.DownloadTask) {
	go func() {
		res := a.transport.Fetch(task.URL)
		if res.HTTPStatus != 200 {
			a.session.Submit(message{
				Kind:       msgFetchFailed,
				Track:      a.track,
				Task:       task,
				HTTPStatus: res.HTTPStatus,
				DurationMs: res.DurationMs,
			})
			return
		}
		a.session.Submit(message{
			Kind:        msgFetchCompleted,
			Track:       a.track,
			Task:        task,
			Bytes:       res.Bytes,
			DurationMs:  res.DurationMs,
			FromCache:   res.FromCache,
			Transferred: res.TransferredBytes,
			Resource:    res.ResourceBytes,
			HTTPStatus:  res.HTTPStatus,
		})
	}()
}
