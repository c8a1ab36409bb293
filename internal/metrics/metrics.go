package metrics

// MetricResult is a computed statistic with the number of samples behind it.
type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

func newMetricResult(samples []float64, stat func([]float64) float64) MetricResult {
	return MetricResult{
		Value:      stat(samples),
		Calculated: len(samples) > 0,
		SampleSize: len(samples),
	}
}
