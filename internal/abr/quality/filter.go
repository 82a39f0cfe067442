package quality

import "github.com/mantonx/dashabr/internal/abr/model"

// FilterOptions carries the dimension-change inputs for the two-pass
// representation filter (§4.3.1).
type FilterOptions struct {
	CapBitrate int64 // 0 means no explicit cap
	ScreenWidth  int
	ScreenHeight int
	DevicePixelRatio float64
	// DisplayWidth/DisplayHeight clamp the target when the actual video
	// element is smaller than the screen.
	DisplayWidth  int
	DisplayHeight int
}

// FilterRepresentations applies the two-pass filter: drop anything above an
// explicit bitrate cap, then drop anything larger than the smallest
// resolution that still covers the (possibly display-clamped) target
// dimensions. Falls back to the single lowest-bitrate representation if the
// result would otherwise be empty.
func FilterRepresentations(reps []*model.Representation, opts FilterOptions) []*model.Representation {
	sorted := model.SortRepresentationsByBitrate(reps)
	if len(sorted) == 0 {
		return sorted
	}

	pass1 := sorted
	if opts.CapBitrate > 0 {
		capped := make([]*model.Representation, 0, len(sorted))
		for _, r := range sorted {
			if r.Bitrate <= opts.CapBitrate {
				capped = append(capped, r)
			}
		}
		if len(capped) > 0 {
			pass1 = capped
		}
	}

	targetW, targetH := targetDimensions(opts)
	if targetW <= 0 || targetH <= 0 {
		return pass1
	}

	covering := smallestCoveringSize(pass1, targetW, targetH)
	if covering == nil {
		return []*model.Representation{lowestBitrate(sorted)}
	}

	pass2 := make([]*model.Representation, 0, len(pass1))
	for _, r := range pass1 {
		if r.Width <= covering.Width && r.Height <= covering.Height {
			pass2 = append(pass2, r)
		}
	}
	if len(pass2) == 0 {
		return []*model.Representation{lowestBitrate(sorted)}
	}
	return pass2
}

func targetDimensions(opts FilterOptions) (int, int) {
	dpr := opts.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	w := float64(opts.ScreenWidth) * dpr
	h := float64(opts.ScreenHeight) * dpr
	if opts.DisplayWidth > 0 && float64(opts.DisplayWidth) < w {
		w = float64(opts.DisplayWidth)
	}
	if opts.DisplayHeight > 0 && float64(opts.DisplayHeight) < h {
		h = float64(opts.DisplayHeight)
	}
	return int(w), int(h)
}

// smallestCoveringSize finds, among reps whose width AND height are both >=
// target, the one with the smallest resolution (by pixel count).
func smallestCoveringSize(reps []*model.Representation, targetW, targetH int) *model.Representation {
	var best *model.Representation
	for _, r := range reps {
		if r.Width >= targetW && r.Height >= targetH {
			if best == nil || r.Width*r.Height < best.Width*best.Height {
				best = r
			}
		}
	}
	return best
}

func lowestBitrate(sorted []*model.Representation) *model.Representation {
	return sorted[0]
}
