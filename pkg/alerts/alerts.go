// Package alerts correlates VM alert exports with the packet rate of the
// VM's tap device in the minutes before each alert.
package alerts

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ccollicutt/latlog/pkg/config"
	"github.com/ccollicutt/latlog/pkg/histogram"
)

// Alert CSV column names.
const (
	ColumnMessage = "Message"
	ColumnTrigger = "Trigger time"
	ColumnLevel   = "Alert level"
)

// PPSLayout is the timestamp layout of packet-rate log lines.
const PPSLayout = "2006-01-02 03:04:05 PM"

// ppsMinFields is the field count of a packet-rate line:
// date, time, AM/PM, device, rx, tx and at least one more column.
const ppsMinFields = 7

// ErrMissingColumn is returned when the alert CSV lacks a required column.
var ErrMissingColumn = errors.New("alert csv missing column")

// Alert is one alert of a tracked VM.
type Alert struct {
	VM      string
	Device  string
	Trigger time.Time
	Level   string
	Message string
}

// ReadAlerts parses the alert CSV and keeps alerts whose message names a VM
// in devices. The VM suffix is the first capture group of vmPattern.
func ReadAlerts(r io.Reader, vmPattern *regexp.Regexp, layout string, devices map[string]string) ([]Alert, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading alert csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range []string{ColumnMessage, ColumnTrigger, ColumnLevel} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}

	var alerts []Alert
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading alert csv: %w", err)
		}

		msg := field(row, cols[ColumnMessage])
		m := vmPattern.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		device, ok := devices[m[1]]
		if !ok {
			continue
		}

		trigger, err := time.Parse(layout, strings.TrimSpace(field(row, cols[ColumnTrigger])))
		if err != nil {
			return nil, fmt.Errorf("alert csv line %d: trigger time: %w", line, err)
		}

		alerts = append(alerts, Alert{
			VM:      m[1],
			Device:  device,
			Trigger: trigger,
			Level:   field(row, cols[ColumnLevel]),
			Message: msg,
		})
	}
	return alerts, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// Point is one packet-rate sample of a device.
type Point struct {
	Time   time.Time
	Device string
	RxPPS  float64
	TxPPS  float64
}

// Series is the packet-rate log, sorted by time.
type Series struct {
	Points    []Point
	Malformed int
}

// ReadPPS parses "YYYY-MM-DD hh:mm:ss AM|PM <dev> <rx> <tx> ..." lines.
// Short or unparsable lines are counted in Malformed.
func ReadPPS(ctx context.Context, r io.Reader) (*Series, error) {
	s := &Series{}
	scanner := bufio.NewScanner(r)

	for n := 0; scanner.Scan(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p, ok := ParsePPSLine(line)
		if !ok {
			s.Malformed++
			continue
		}
		s.Points = append(s.Points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pps log: %w", err)
	}

	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Time.Before(s.Points[j].Time)
	})
	return s, nil
}

// ParsePPSLine parses "YYYY-MM-DD hh:mm:ss AM <dev> <rx> <tx> ...".
func ParsePPSLine(line string) (Point, bool) {
	parts := strings.Fields(line)
	if len(parts) < ppsMinFields {
		return Point{}, false
	}

	ts, err := time.Parse(PPSLayout, parts[0]+" "+parts[1]+" "+strings.ToUpper(parts[2]))
	if err != nil {
		return Point{}, false
	}
	rx, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return Point{}, false
	}
	tx, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return Point{}, false
	}
	return Point{Time: ts, Device: parts[3], RxPPS: rx, TxPPS: tx}, true
}

// Window returns the TX rates of device in [end-span, end).
func (s *Series) Window(device string, end time.Time, span time.Duration) []float64 {
	start := end.Add(-span)
	i := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Time.Before(start)
	})

	var tx []float64
	for ; i < len(s.Points) && s.Points[i].Time.Before(end); i++ {
		if s.Points[i].Device == device {
			tx = append(tx, s.Points[i].TxPPS)
		}
	}
	return tx
}

// WindowStats are the TX rates of one device before one alert.
type WindowStats struct {
	VM      string        `json:"vm"`
	Device  string        `json:"device"`
	Trigger time.Time     `json:"trigger_time"`
	Level   string        `json:"alert_level"`
	Window  time.Duration `json:"window"`

	AvgTx      float64 `json:"avg_tx_pps"`
	MaxTx      float64 `json:"max_tx_pps"`
	MinTx      float64 `json:"min_tx_pps"`
	DataPoints int     `json:"data_points"`
}

// VMSummary aggregates the windows of every alert of one VM.
type VMSummary struct {
	VM      string          `json:"vm"`
	Device  string          `json:"device"`
	Alerts  int             `json:"alerts"`
	Windows []WindowSummary `json:"windows"`
}

// WindowSummary is the avg-of-avgs, max-of-maxes and min-of-mins for one
// window span.
type WindowSummary struct {
	Window  time.Duration `json:"window"`
	AvgTx   float64       `json:"avg_tx_pps"`
	MaxTx   float64       `json:"max_tx_pps"`
	MinTx   float64       `json:"min_tx_pps"`
	Samples int           `json:"samples"`
}

// Result is the alert packet-rate analysis.
type Result struct {
	Windows   []time.Duration `json:"windows"`
	Alerts    int             `json:"alerts"`
	Points    int             `json:"pps_points"`
	Malformed int             `json:"pps_malformed"`

	Rows    []WindowStats `json:"rows"`
	Summary []VMSummary   `json:"summary"`
}

// Analyze computes window statistics for every alert. Values are rounded
// to two decimals; an empty window reports zeros.
func Analyze(alerts []Alert, series *Series, windows []time.Duration) *Result {
	res := &Result{
		Windows:   windows,
		Alerts:    len(alerts),
		Points:    len(series.Points),
		Malformed: series.Malformed,
	}

	for _, a := range alerts {
		for _, w := range windows {
			row := WindowStats{VM: a.VM, Device: a.Device, Trigger: a.Trigger, Level: a.Level, Window: w}
			tx := series.Window(a.Device, a.Trigger, w)
			if len(tx) > 0 {
				st := histogram.Summarize(tx)
				row.AvgTx = round2(st.Mean)
				row.MaxTx = round2(st.Max)
				row.MinTx = round2(st.Min)
				row.DataPoints = st.Count
			}
			res.Rows = append(res.Rows, row)
		}
	}

	res.Summary = summarize(res.Rows, windows)
	return res
}

func summarize(rows []WindowStats, windows []time.Duration) []VMSummary {
	var order []string
	byVM := make(map[string][]WindowStats)
	for _, r := range rows {
		if _, ok := byVM[r.VM]; !ok {
			order = append(order, r.VM)
		}
		byVM[r.VM] = append(byVM[r.VM], r)
	}

	var out []VMSummary
	for _, vm := range order {
		vmRows := byVM[vm]
		s := VMSummary{VM: vm, Device: vmRows[0].Device, Alerts: len(vmRows) / max(len(windows), 1)}
		for _, w := range windows {
			ws := WindowSummary{Window: w, MinTx: math.Inf(1), MaxTx: math.Inf(-1)}
			var sum float64
			for _, r := range vmRows {
				if r.Window != w {
					continue
				}
				ws.Samples++
				sum += r.AvgTx
				ws.MaxTx = math.Max(ws.MaxTx, r.MaxTx)
				ws.MinTx = math.Min(ws.MinTx, r.MinTx)
			}
			if ws.Samples == 0 {
				continue
			}
			ws.AvgTx = round2(sum / float64(ws.Samples))
			s.Windows = append(s.Windows, ws)
		}
		out = append(out, s)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Run reads the alert CSV and packet-rate log named on the command line
// and analyzes them with the alerts configuration.
func Run(ctx context.Context, cfg *config.AlertsConfig, alertsPath, ppsPath string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	af, err := os.Open(alertsPath)
	if err != nil {
		return nil, fmt.Errorf("opening alert csv: %w", err)
	}
	defer af.Close()

	alerts, err := ReadAlerts(af, cfg.CompiledVMPattern(), cfg.TimeLayout, cfg.VMDevices)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded alerts", "path", alertsPath, "alerts", len(alerts))

	pf, err := os.Open(ppsPath)
	if err != nil {
		return nil, fmt.Errorf("opening pps log: %w", err)
	}
	defer pf.Close()

	series, err := ReadPPS(ctx, pf)
	if err != nil {
		return nil, err
	}
	if series.Malformed > 0 {
		logger.Warn("skipped malformed pps lines", "count", series.Malformed)
	}
	logger.Info("loaded pps log", "path", ppsPath, "points", len(series.Points))

	return Analyze(alerts, series, cfg.Windows), nil
}

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"vm_suffix", "device", "trigger_time", "alert_level", "minutes_before",
	"avg_tx_pps", "max_tx_pps", "min_tx_pps", "data_points",
}

// WriteCSV writes one row per alert and window. Nothing is written when
// there are no rows.
func WriteCSV(w io.Writer, rows []WindowStats, layout string) error {
	if len(rows) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.VM,
			r.Device,
			r.Trigger.Format(layout),
			r.Level,
			strconv.FormatFloat(r.Window.Minutes(), 'f', -1, 64),
			strconv.FormatFloat(r.AvgTx, 'f', -1, 64),
			strconv.FormatFloat(r.MaxTx, 'f', -1, 64),
			strconv.FormatFloat(r.MinTx, 'f', -1, 64),
			strconv.Itoa(r.DataPoints),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
