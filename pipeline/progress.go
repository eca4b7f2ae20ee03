package pipeline

// MapLinearProgressToRoute re-maps linear animation time to route progress
// so the reveal tracks real ride pacing. The mapping is piecewise-linear
// between the elapsed-time samples; activities without usable elapsed data
// fall back to linear progress.
func MapLinearProgressToRoute(data *VizData, linearProgress float64) float64 {
	linearProgress = clamp01(linearProgress)
	if len(data.Points) < 2 {
		return linearProgress
	}

	var firstSample, lastSample *[2]float64
	for i := range data.Points {
		p := &data.Points[i]
		if p.ElapsedSeconds == nil {
			continue
		}
		sample := [2]float64{*p.ElapsedSeconds, p.RouteProgress}
		if firstSample == nil {
			first := sample
			firstSample = &first
		}
		last := sample
		lastSample = &last
	}
	if firstSample == nil || lastSample == nil {
		return linearProgress
	}

	totalElapsed := lastSample[0]
	if totalElapsed <= epsilon {
		return linearProgress
	}

	targetElapsed := linearProgress * totalElapsed
	if targetElapsed <= firstSample[0] {
		return clamp01(firstSample[1])
	}

	var prev *[2]float64
	for i := range data.Points {
		p := &data.Points[i]
		if p.ElapsedSeconds == nil {
			continue
		}
		curr := [2]float64{*p.ElapsedSeconds, p.RouteProgress}
		if prev != nil {
			if curr[0] <= prev[0] {
				prev = &curr
				continue
			}
			if targetElapsed <= curr[0] {
				localT := clamp01((targetElapsed - prev[0]) / (curr[0] - prev[0]))
				return clamp01(prev[1] + (curr[1]-prev[1])*localT)
			}
		}
		prev = &curr
	}

	return clamp01(lastSample[1])
}
