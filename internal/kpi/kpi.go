// Package kpi rolls finalized attendance and patrol records up into
// compliance, omission and deviation metrics over date windows. Aggregation
// is a pure function of its input records; nothing here is persisted.
package kpi

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AlertThresholdPct is the compliance percentage below which an
// installation is flagged for operational attention. Exactly 80 is not an
// alert; 79 is.
const AlertThresholdPct = 80.0

// rankLimit caps the ranked lists.
const rankLimit = 5

// Record is one finalized check unit feeding the aggregator: a daily
// attendance row or a finalized patrol execution, already reduced to
// counts and deviations.
type Record struct {
	InstallationID uuid.UUID
	Day            time.Time
	Scheduled      int
	Completed      int
	// Deviations are per-mark absolute time deviations, already capped to
	// 12 hours on the 24-hour circle.
	Deviations []time.Duration
	CriticalIncidents int
	NoveltyIncidents  int
}

// InstallationKPI is the per-installation rollup.
type InstallationKPI struct {
	InstallationID    uuid.UUID     `json:"installationId"`
	Scheduled         int           `json:"scheduled"`
	Completed         int           `json:"completed"`
	Omitted           int           `json:"omitted"`
	CompliancePct     float64       `json:"compliancePct"`
	Alert             bool          `json:"alert"`
	AvgDeviation      time.Duration `json:"-"`
	AvgDeviationMin   float64       `json:"avgDeviationMinutes"`
	CriticalIncidents int           `json:"criticalIncidents"`
	NoveltyIncidents  int           `json:"noveltyIncidents"`
}

// Global is the tenant-wide rollup for a window.
type Global struct {
	Scheduled         int     `json:"scheduled"`
	Completed         int     `json:"completed"`
	Omitted           int     `json:"omitted"`
	CompliancePct     float64 `json:"compliancePct"`
	Alerts            int     `json:"alerts"`
	CriticalIncidents int     `json:"criticalIncidents"`
	NoveltyIncidents  int     `json:"noveltyIncidents"`
}

// TrendPoint is one ISO week on the trend series.
type TrendPoint struct {
	ISOYear       int     `json:"isoYear"`
	ISOWeek       int     `json:"isoWeek"`
	Scheduled     int     `json:"scheduled"`
	Completed     int     `json:"completed"`
	CompliancePct float64 `json:"compliancePct"`
}

// Aggregate is the full rollup for one window.
type Aggregate struct {
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	Global        Global            `json:"global"`
	Installations []InstallationKPI `json:"installations"`
	Trend         []TrendPoint      `json:"trend"`
	TopRisk       []InstallationKPI `json:"topRisk"`
	TopPerformers []InstallationKPI `json:"topPerformers"`
}

// Compliance derives the primary KPI. An installation with nothing
// scheduled is not penalized: zero total is 100%.
func Compliance(completed, scheduled int) float64 {
	if scheduled == 0 {
		return 100
	}
	return float64(completed) / float64(scheduled) * 100
}

// Compute aggregates records into the window rollup. Records outside
// [from, to) are ignored.
func Compute(from, to time.Time, records []Record) *Aggregate {
	perInstallation := make(map[uuid.UUID]*InstallationKPI)
	type weekKey struct{ year, week int }
	weeks := make(map[weekKey]*TrendPoint)
	deviationSums := make(map[uuid.UUID]time.Duration)
	deviationCounts := make(map[uuid.UUID]int)

	for _, rec := range records {
		if rec.Day.Before(from) || !rec.Day.Before(to) {
			continue
		}
		inst := perInstallation[rec.InstallationID]
		if inst == nil {
			inst = &InstallationKPI{InstallationID: rec.InstallationID}
			perInstallation[rec.InstallationID] = inst
		}
		inst.Scheduled += rec.Scheduled
		inst.Completed += rec.Completed
		inst.CriticalIncidents += rec.CriticalIncidents
		inst.NoveltyIncidents += rec.NoveltyIncidents
		for _, d := range rec.Deviations {
			deviationSums[rec.InstallationID] += d
			deviationCounts[rec.InstallationID]++
		}

		year, week := rec.Day.ISOWeek()
		wp := weeks[weekKey{year, week}]
		if wp == nil {
			wp = &TrendPoint{ISOYear: year, ISOWeek: week}
			weeks[weekKey{year, week}] = wp
		}
		wp.Scheduled += rec.Scheduled
		wp.Completed += rec.Completed
	}

	agg := &Aggregate{From: from, To: to}
	for id, inst := range perInstallation {
		inst.Omitted = inst.Scheduled - inst.Completed
		inst.CompliancePct = Compliance(inst.Completed, inst.Scheduled)
		inst.Alert = inst.CompliancePct < AlertThresholdPct
		if n := deviationCounts[id]; n > 0 {
			inst.AvgDeviation = deviationSums[id] / time.Duration(n)
			inst.AvgDeviationMin = inst.AvgDeviation.Minutes()
		}

		agg.Global.Scheduled += inst.Scheduled
		agg.Global.Completed += inst.Completed
		agg.Global.Omitted += inst.Omitted
		agg.Global.CriticalIncidents += inst.CriticalIncidents
		agg.Global.NoveltyIncidents += inst.NoveltyIncidents
		if inst.Alert {
			agg.Global.Alerts++
		}
		agg.Installations = append(agg.Installations, *inst)
	}
	agg.Global.CompliancePct = Compliance(agg.Global.Completed, agg.Global.Scheduled)

	sort.Slice(agg.Installations, func(i, j int) bool {
		return agg.Installations[i].InstallationID.String() < agg.Installations[j].InstallationID.String()
	})
	for _, wp := range weeks {
		wp.CompliancePct = Compliance(wp.Completed, wp.Scheduled)
		agg.Trend = append(agg.Trend, *wp)
	}
	sort.Slice(agg.Trend, func(i, j int) bool {
		a, b := agg.Trend[i], agg.Trend[j]
		if a.ISOYear != b.ISOYear {
			return a.ISOYear < b.ISOYear
		}
		return a.ISOWeek < b.ISOWeek
	})

	agg.TopRisk = rankByRisk(agg.Installations)
	agg.TopPerformers = rankByPerformance(agg.Installations)
	return agg
}

// rankByRisk orders installations by operational risk: critical-incident
// presence first, then the alert flag, then omission count, then lowest
// compliance.
func rankByRisk(installations []InstallationKPI) []InstallationKPI {
	ranked := append([]InstallationKPI(nil), installations...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.CriticalIncidents > 0) != (b.CriticalIncidents > 0) {
			return a.CriticalIncidents > 0
		}
		if a.CriticalIncidents != b.CriticalIncidents {
			return a.CriticalIncidents > b.CriticalIncidents
		}
		if a.Alert != b.Alert {
			return a.Alert
		}
		if a.Omitted != b.Omitted {
			return a.Omitted > b.Omitted
		}
		return a.CompliancePct < b.CompliancePct
	})
	return truncate(ranked)
}

// rankByPerformance orders installations by highest compliance, ties broken
// by fewest omissions.
func rankByPerformance(installations []InstallationKPI) []InstallationKPI {
	ranked := append([]InstallationKPI(nil), installations...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CompliancePct != b.CompliancePct {
			return a.CompliancePct > b.CompliancePct
		}
		return a.Omitted < b.Omitted
	})
	return truncate(ranked)
}

func truncate(ranked []InstallationKPI) []InstallationKPI {
	if len(ranked) > rankLimit {
		return ranked[:rankLimit]
	}
	return ranked
}
