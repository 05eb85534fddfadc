package telemetry

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Units   int `csv:"units"`
	Dead    int `csv:"dead"`
	Players int `csv:"players"`
	Drones  int `csv:"drones"`
	Bullets int `csv:"bullets"`
	Cores   int `csv:"cores"`
	Blocks  int `csv:"blocks"`

	// Combat and spawning during the window
	Hits     int `csv:"hits"`
	Kills    int `csv:"kills"`
	Respawns int `csv:"respawns"`
	Removed  int `csv:"removed"`

	// Health of live destructible units at window end
	HealthMean float64 `csv:"health_mean"`
	HealthStd  float64 `csv:"health_std"`
	HealthP10  float64 `csv:"health_p10"`
	HealthP50  float64 `csv:"health_p50"`
	HealthP90  float64 `csv:"health_p90"`

	// Power at window end
	PowerGraphs       int     `csv:"power_graphs"`
	PowerSatisfaction float64 `csv:"power_satisfaction"` // Mean over graphs with demand
	PowerStored       float64 `csv:"power_stored"`

	// Replication during the window
	CallsIssued    int `csv:"calls_issued"`
	CallsCoalesced int `csv:"calls_coalesced"`
	CallsApplied   int `csv:"calls_applied"`
	CallsSent      int `csv:"calls_sent"`
	CallsDropped   int `csv:"calls_dropped"`
	CallsRejected  int `csv:"calls_rejected"`
}

// Percentile calculates the p-th percentile of a sorted slice by linear
// interpolation. p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// Summarize computes mean, population standard deviation and percentiles.
func Summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	mean, variance := stat.PopMeanVariance(values, nil)

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return Distribution{
		Mean: mean,
		Std:  math.Sqrt(variance),
		P10:  Percentile(sorted, 0.10),
		P50:  Percentile(sorted, 0.50),
		P90:  Percentile(sorted, 0.90),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("units", s.Units),
		slog.Int("dead", s.Dead),
		slog.Int("players", s.Players),
		slog.Int("drones", s.Drones),
		slog.Int("bullets", s.Bullets),
		slog.Int("cores", s.Cores),
		slog.Int("blocks", s.Blocks),
		slog.Int("hits", s.Hits),
		slog.Int("kills", s.Kills),
		slog.Int("respawns", s.Respawns),
		slog.Int("removed", s.Removed),
		slog.Float64("health_mean", s.HealthMean),
		slog.Float64("health_p50", s.HealthP50),
		slog.Int("power_graphs", s.PowerGraphs),
		slog.Float64("power_satisfaction", s.PowerSatisfaction),
		slog.Float64("power_stored", s.PowerStored),
		slog.Int("calls_issued", s.CallsIssued),
		slog.Int("calls_coalesced", s.CallsCoalesced),
		slog.Int("calls_applied", s.CallsApplied),
		slog.Int("calls_sent", s.CallsSent),
		slog.Int("calls_dropped", s.CallsDropped),
		slog.Int("calls_rejected", s.CallsRejected),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
