package monitor

import (
	"fmt"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// NA marks a matrix cell without data, including a node probing itself.
const NA = "N/A"

// Quality grades, best first.
const (
	GradeExcellent        = "Excellent"
	GradeGood             = "Good"
	GradeFair             = "Fair"
	GradeNeedsImprovement = "Needs improvement"
)

// severeLossCount is the daily loss above which a connection is named as
// a day's worst connection.
const severeLossCount = 1000

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators.
func FormatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatRate renders a percentage with four decimals.
func FormatRate(pct float64) string {
	return fmt.Sprintf("%.4f%%", pct)
}

// Grade rates a network by its loss and high-latency percentages.
func Grade(lossRate, latencyRate float64) string {
	switch {
	case lossRate < 0.01 && latencyRate < 0.002:
		return GradeExcellent
	case lossRate < 0.05 && latencyRate < 0.01:
		return GradeGood
	case lossRate < 0.1 && latencyRate < 0.05:
		return GradeFair
	default:
		return GradeNeedsImprovement
	}
}

// Summary is the whole-period view of one network.
type Summary struct {
	Network Network `json:"network"`
	HasData bool    `json:"has_data"`

	Days       int `json:"days"`
	ValidPairs int `json:"valid_pairs"`

	ExpectedPackets int64 `json:"expected_packets"`
	PacketsLost     int64 `json:"packets_lost"`
	HighLatency     int64 `json:"high_latency"`

	LossRate        float64 `json:"loss_rate_pct"`
	HighLatencyRate float64 `json:"high_latency_rate_pct"`
	Grade           string  `json:"grade,omitempty"`

	IPs []string `json:"ips"`
}

// Summarize totals one network over every day. A valid pair is one
// day/source/target cell with data.
func (r *Result) Summarize(n Network) Summary {
	ns := r.Networks[n]
	s := Summary{Network: n}
	if ns == nil {
		return s
	}
	s.IPs = ns.IPs
	s.Days = len(ns.Days)

	for _, day := range ns.Days {
		for _, row := range day {
			for _, c := range row {
				if !c.HasData {
					continue
				}
				s.ValidPairs++
				s.PacketsLost += int64(c.PacketsLost)
				s.HighLatency += int64(c.HighLatency)
			}
		}
	}

	s.ExpectedPackets = int64(s.ValidPairs) * int64(r.DailyPackets)
	if s.ExpectedPackets > 0 {
		s.HasData = true
		s.LossRate = float64(s.PacketsLost) * 100 / float64(s.ExpectedPackets)
		s.HighLatencyRate = float64(s.HighLatency) * 100 / float64(s.ExpectedPackets)
		s.Grade = Grade(s.LossRate, s.HighLatencyRate)
	}
	return s
}

// Matrix is one day's source-by-target grid of rendered cells.
type Matrix struct {
	Date string     `json:"date"`
	IPs  []string   `json:"ips"`
	Rows [][]string `json:"rows"`
}

// Matrix kinds.
const (
	MatrixLossRate        = "Packet Loss Rate"
	MatrixHighLatencyRate = "High Latency Rate"
	MatrixLossCount       = "Packet Loss Count"
)

// MatrixKinds lists the matrices in report order.
var MatrixKinds = []string{MatrixLossRate, MatrixHighLatencyRate, MatrixLossCount}

// DailyMatrix renders one kind of matrix for a network and day.
func (r *Result) DailyMatrix(n Network, date, kind string) Matrix {
	ns := r.Networks[n]
	m := Matrix{Date: date, IPs: ns.IPs}

	for _, src := range ns.IPs {
		row := make([]string, 0, len(ns.IPs))
		for _, dst := range ns.IPs {
			c := ns.Cell(date, src, dst)
			if src == dst || c == nil {
				row = append(row, NA)
				continue
			}
			row = append(row, r.cellText(c, kind))
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func (r *Result) cellText(c *Cell, kind string) string {
	daily := float64(r.DailyPackets)
	switch kind {
	case MatrixLossRate:
		if daily == 0 {
			return NA
		}
		return FormatRate(float64(c.PacketsLost) * 100 / daily)
	case MatrixHighLatencyRate:
		if daily == 0 {
			return NA
		}
		return FormatRate(float64(c.HighLatency) * 100 / daily)
	default:
		return FormatCount(int64(c.PacketsLost))
	}
}

// Connection is one source-to-target link on one day.
type Connection struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	PacketsLost int    `json:"packets_lost"`
}

// Hotspot is one of the days with the most loss.
type Hotspot struct {
	Date      string `json:"date"`
	TotalLoss int64  `json:"total_loss"`

	// Worst is the connection with the most loss that day, nil unless it
	// lost more than 1000 packets.
	Worst *Connection `json:"worst,omitempty"`
}

// Hotspots returns up to limit days with loss, worst first.
func (r *Result) Hotspots(n Network, limit int) []Hotspot {
	ns := r.Networks[n]
	var spots []Hotspot
	for _, date := range ns.Dates() {
		h := Hotspot{Date: date}
		for _, src := range sortedRowKeys(ns.Days[date]) {
			row := ns.Days[date][src]
			for _, dst := range sortedCellKeys(row) {
				c := row[dst]
				if src == dst || !c.HasData {
					continue
				}
				h.TotalLoss += int64(c.PacketsLost)
				if c.PacketsLost > severeLossCount && (h.Worst == nil || c.PacketsLost > h.Worst.PacketsLost) {
					h.Worst = &Connection{Source: src, Target: dst, PacketsLost: c.PacketsLost}
				}
			}
		}
		if h.TotalLoss > 0 {
			spots = append(spots, h)
		}
	}

	sort.SliceStable(spots, func(i, j int) bool {
		return spots[i].TotalLoss > spots[j].TotalLoss
	})
	if len(spots) > limit {
		spots = spots[:limit]
	}
	return spots
}

// Completeness compares the cells with data against every possible
// source/target cell over the covered days.
type Completeness struct {
	Network       Network `json:"network"`
	ValidPairs    int     `json:"valid_pairs"`
	PossiblePairs int     `json:"possible_pairs"`
	Coverage      float64 `json:"coverage_pct"`
	Complete      bool    `json:"complete"`
}

// Completeness reports how much of the expected probe grid has data.
func (r *Result) Completeness(n Network) Completeness {
	ns := r.Networks[n]
	s := r.Summarize(n)
	ips := len(ns.IPs)
	c := Completeness{
		Network:       n,
		ValidPairs:    s.ValidPairs,
		PossiblePairs: s.Days * ips * (ips - 1),
	}
	if c.PossiblePairs > 0 {
		c.Coverage = float64(c.ValidPairs) * 100 / float64(c.PossiblePairs)
		c.Complete = c.ValidPairs >= c.PossiblePairs
	}
	return c
}

// Trend directions.
const (
	TrendImproving = "improving"
	TrendWorsening = "worsening"
	TrendStable    = "stable"
)

// Trend compares the total loss of the first and last third of the days
// covered by any network. The early third rounds down and the late third
// rounds up, so four days compare day one against days three and four.
// It returns "" with fewer than three days or when either third had no loss.
func (r *Result) Trend(n Network) string {
	all := make(map[string]bool)
	for _, ns := range r.Networks {
		for d := range ns.Days {
			all[d] = true
		}
	}
	dates := sortedKeys(all)
	if len(dates) < 3 {
		return ""
	}
	earlyDays := len(dates) / 3
	lateDays := (len(dates) + 2) / 3

	early := r.dayLoss(n, dates[:earlyDays])
	late := r.dayLoss(n, dates[len(dates)-lateDays:])
	switch {
	case early == 0 || late == 0:
		return ""
	case late < early:
		return TrendImproving
	case late > early:
		return TrendWorsening
	default:
		return TrendStable
	}
}

func (r *Result) dayLoss(n Network, dates []string) int64 {
	ns := r.Networks[n]
	var total int64
	for _, d := range dates {
		for src, row := range ns.Days[d] {
			for dst, c := range row {
				if src != dst && c.HasData {
					total += int64(c.PacketsLost)
				}
			}
		}
	}
	return total
}

func sortedRowKeys(d Day) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCellKeys(row map[string]*Cell) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
