package ranking

type CutoffOptions struct {
	DropThreshold float64
	MeanThreshold float64
	MaxK          int
}

func DefaultCutoffOptions() CutoffOptions {
	return CutoffOptions{
		DropThreshold: 0.2,
		MeanThreshold: 0.5,
		MaxK:          15,
	}
}

// SelectCutoff decides how many leading entries of an ascending distance list
// to keep. Lists no longer than MaxK are returned untouched as MaxK.
// A zero result means no confident entries.
func SelectCutoff(scores []float64, opts CutoffOptions) int {
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultCutoffOptions().MaxK
	}
	if len(scores) <= opts.MaxK {
		return opts.MaxK
	}

	best := scores[0]
	selected := make([]float64, 0, len(scores))
	selected = append(selected, best)
	sum := best
	for _, s := range scores[1:] {
		// a zero distance makes the ratio unbounded, so it is always kept
		if s == 0 || best/s > opts.DropThreshold {
			selected = append(selected, s)
			sum += s
		}
	}

	for len(selected) > 0 && sum/float64(len(selected)) < opts.MeanThreshold {
		last := selected[len(selected)-1]
		selected = selected[:len(selected)-1]
		sum -= last
	}

	if len(selected) > opts.MaxK {
		return opts.MaxK
	}
	return len(selected)
}
