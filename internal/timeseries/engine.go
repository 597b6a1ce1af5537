package timeseries

import (
	"sort"

	"github.com/montanaflynn/stats"

	"SignalPipeline/internal/domain"
)

// Engine classifies trend direction over the trailing window of a keyword's
// time series. The label is always recomputed from the point sequence, never
// stored as independent truth.
type Engine struct {
	window    int
	threshold float64
}

// New builds an engine with the trailing window size (days) and the slope
// threshold (composite points per day) separating rising/falling from stable.
func New(window int, threshold float64) *Engine {
	if window < 2 {
		window = 2
	}
	if threshold <= 0 {
		threshold = 1.5
	}
	return &Engine{window: window, threshold: threshold}
}

// Window reports the trailing window size in days.
func (e *Engine) Window() int { return e.window }

// BuildPoint derives the series row for one keyword/day from its finalized
// records.
func BuildPoint(imp domain.ImportanceRecord, sent domain.SentimentRecord) domain.TimeSeriesPoint {
	return domain.TimeSeriesPoint{
		Day:            imp.Day,
		Importance:     imp.Composite,
		SentimentScore: sent.Score,
		Frequency:      imp.Frequency,
	}
}

// Classify labels the trend over the trailing window. Fewer than two points is
// stable by definition, not an error.
func (e *Engine) Classify(points []domain.TimeSeriesPoint) domain.TrendLabel {
	points = Trailing(points, e.window)
	if len(points) < 2 {
		return domain.TrendStable
	}

	slope, err := importanceSlope(points)
	if err != nil {
		return domain.TrendStable
	}

	switch {
	case slope > e.threshold:
		return domain.TrendRising
	case slope < -e.threshold:
		return domain.TrendFalling
	default:
		return domain.TrendStable
	}
}

// Trailing returns the last n points of a date-ascending series, sorting
// defensively in case the store returned them unordered.
func Trailing(points []domain.TimeSeriesPoint, n int) []domain.TimeSeriesPoint {
	sorted := make([]domain.TimeSeriesPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })
	if n > 0 && len(sorted) > n {
		sorted = sorted[len(sorted)-n:]
	}
	return sorted
}

// importanceSlope fits a least-squares line over (day index, importance) and
// returns its slope. Day indexes come from actual calendar distance so gaps in
// the series do not exaggerate the fit.
func importanceSlope(points []domain.TimeSeriesPoint) (float64, error) {
	base := points[0].Day.Time()
	series := make(stats.Series, 0, len(points))
	for _, pt := range points {
		x := pt.Day.Time().Sub(base).Hours() / 24
		series = append(series, stats.Coordinate{X: x, Y: pt.Importance})
	}

	fitted, err := stats.LinearRegression(series)
	if err != nil {
		return 0, err
	}

	dx := fitted[len(fitted)-1].X - fitted[0].X
	if dx == 0 {
		return 0, nil
	}
	return (fitted[len(fitted)-1].Y - fitted[0].Y) / dx, nil
}
