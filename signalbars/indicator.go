package signalbars

// Inputs is the per-second snapshot the indicator scores, per §4.9.
type Inputs struct {
	ReconnectingOrWaitingForAcks bool
	CurrentEndpointIsTCPRelay    bool
	SendLossRate                 float64
	JitterLateCountAverage       float64
}

// Callback is invoked whenever the smoothed bar count changes.
type Callback func(bars int)

// Indicator tracks a 4-sample moving average of the per-second score and
// invokes an optional callback on change.
type Indicator struct {
	samples  [4]int
	next     int
	filled   int
	lastBars int
	onChange Callback
}

// New creates an Indicator. onChange may be nil.
func New(onChange Callback) *Indicator {
	return &Indicator{onChange: onChange, lastBars: 4}
}

// Sample scores one second of inputs per §4.9's thresholds and folds it
// into the moving average, invoking the callback if the averaged bar count
// (integer division, so truncated) changed.
func (ind *Indicator) Sample(in Inputs) int {
	score := scoreOne(in)

	ind.samples[ind.next] = score
	ind.next = (ind.next + 1) % len(ind.samples)
	if ind.filled < len(ind.samples) {
		ind.filled++
	}

	sum := 0
	for i := 0; i < ind.filled; i++ {
		sum += ind.samples[i]
	}
	avg := sum / ind.filled

	if avg != ind.lastBars {
		ind.lastBars = avg
		if ind.onChange != nil {
			ind.onChange(avg)
		}
	}
	return avg
}

func scoreOne(in Inputs) int {
	if in.ReconnectingOrWaitingForAcks {
		return 1
	}

	score := 4
	if in.CurrentEndpointIsTCPRelay && score > 3 {
		score = 3
	}

	switch {
	case in.SendLossRate >= 0.1:
		score = min(score, 1)
	case in.SendLossRate >= 0.0625:
		score = min(score, 2)
	case in.SendLossRate >= 0.025:
		score = min(score, 3)
	}

	switch {
	case in.JitterLateCountAverage >= 0.2:
		score = min(score, 1)
	case in.JitterLateCountAverage >= 0.1:
		score = min(score, 2)
	}

	if score < 1 {
		score = 1
	}
	return score
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
