package output

import (
	"time"

	"github.com/ccollicutt/latlog/pkg/alerts"
	"github.com/ccollicutt/latlog/pkg/analyzer"
	"github.com/ccollicutt/latlog/pkg/histogram"
	"github.com/ccollicutt/latlog/pkg/monitor"
	"github.com/ccollicutt/latlog/pkg/parser"
)

func testHistogram(counts [4]int, loss, invalid int) histogram.Histogram {
	return histogram.Histogram{
		Buckets: []histogram.Bucket{
			{Label: "[0,10)", Lower: 0, Upper: 10, Count: counts[0]},
			{Label: "[10,100)", Lower: 10, Upper: 100, Count: counts[1]},
			{Label: "[100,500)", Lower: 100, Upper: 500, Count: counts[2]},
			{Label: "[500,∞)", Lower: 500, Count: counts[3]},
		},
		Loss:    loss,
		Invalid: invalid,
	}
}

func createTestResult() *analyzer.AnalysisResult {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	clean := &analyzer.PairResult{
		Name:          "node1-node2",
		SrcIP:         "10.0.0.1",
		DstIP:         "10.0.0.2",
		OutgoingFiles: []string{"node1/out.log"},
		IncomingFiles: []string{"node2/in.log"},
		OutgoingStats: parser.SourceStats{Records: 3, Samples: 3},
		IncomingStats: parser.SourceStats{Records: 3, Samples: 3},
		Counts:        analyzer.MatchCounts{Outgoing: 3, Incoming: 3, Matched: 3},
		Histogram:     testHistogram([4]int{2, 1, 0, 0}, 0, 0),
		Latency:       histogram.Stats{Count: 3, Mean: 8, Median: 5, Min: 2, Max: 17, P95: 17, P99: 17},
	}

	lossy := &analyzer.PairResult{
		Name:           "node2-node3",
		SrcIP:          "10.0.0.2",
		DstIP:          "10.0.0.3",
		OutgoingFiles:  []string{"node2/out.log"},
		IncomingFiles:  []string{"node3/in.log"},
		OutgoingStats:  parser.SourceStats{Records: 5, Samples: 4, ParseErrors: 1},
		IncomingStats:  parser.SourceStats{Records: 3, Samples: 3},
		Counts:         analyzer.MatchCounts{Outgoing: 4, Incoming: 3, Matched: 2, Lost: 1, Skewed: 1},
		Histogram:      testHistogram([4]int{0, 0, 1, 1}, 1, 1),
		AboveThreshold: testHistogram([4]int{0, 0, 0, 1}, 0, 0),
		Latency:        histogram.Stats{Count: 2, Mean: 450, Median: 450, Min: 300, Max: 600, P95: 600, P99: 600},
		DropReasons:    map[string]int{"OUTGOING_Stage_1_to_2_SKB_Mismatch": 1},
		MaxStages:      map[string]int{"INCOMING_Path2_3->4": 1},
		Slowest: []analyzer.SlowPair{
			{Token: "tok-slow", Outgoing: start, LatencyMs: 600, MaxStage: "INCOMING_Path2_3->4", Source: "node2/out.log", LineNum: 7},
		},
	}

	overall := &analyzer.PairResult{
		Name:          "overall",
		OutgoingStats: clean.OutgoingStats.Add(lossy.OutgoingStats),
		IncomingStats: clean.IncomingStats.Add(lossy.IncomingStats),
		Counts:        clean.Counts.Add(lossy.Counts),
		Histogram:     testHistogram([4]int{2, 1, 1, 1}, 1, 1),
	}

	return &analyzer.AnalysisResult{
		Pairs:   []*analyzer.PairResult{clean, lossy},
		Overall: overall,
		Metadata: analyzer.AnalysisMetadata{
			Name:             "lab",
			Buckets:          []float64{10, 100, 500},
			Window:           5 * time.Second,
			StageThresholdMs: 500,
			StartTime:        start,
			EndTime:          start.Add(2 * time.Second),
		},
	}
}

func createTestReport() *Report {
	return NewReport(createTestResult(), "latlog.yaml")
}

func createMonitorReport() *monitor.Report {
	ips := []string{"192.168.1.1", "192.168.1.2"}
	matrix := monitor.Matrix{
		Date: "2024-03-01",
		IPs:  ips,
		Rows: [][]string{{"-", "0.0010%"}, {"1.2000%", "-"}},
	}
	days := []monitor.DayMatrices{{
		Date: "2024-03-01",
		Matrices: map[string]monitor.Matrix{
			monitor.MatrixLossRate:        matrix,
			monitor.MatrixHighLatencyRate: matrix,
			monitor.MatrixLossCount:       matrix,
		},
	}}

	return &monitor.Report{
		Name:         "cluster",
		Source:       "highlatency",
		DailyPackets: 172800,
		Files:        4,
		Entries:      10,
		Malformed:    1,
		MissingDirs:  []string{"/data/node9"},
		Networks: []monitor.NetworkReport{
			{
				Summary: monitor.Summary{
					Network: monitor.NetworkStorage, HasData: true, Days: 1, ValidPairs: 2,
					ExpectedPackets: 345600, PacketsLost: 2075, HighLatency: 10,
					LossRate: 0.6004, HighLatencyRate: 0.0029, Grade: monitor.GradeExcellent, IPs: ips,
				},
				Hotspots: []monitor.Hotspot{{
					Date: "2024-03-01", TotalLoss: 2075,
					Worst: &monitor.Connection{Source: "192.168.1.2", Target: "192.168.1.1", PacketsLost: 2073},
				}},
				Completeness: monitor.Completeness{Network: monitor.NetworkStorage, ValidPairs: 2, PossiblePairs: 2, Coverage: 100, Complete: true},
				Trend:        monitor.TrendImproving,
				Days:         days,
			},
			{
				Summary: monitor.Summary{
					Network: monitor.NetworkManagement, HasData: true, Days: 1, ValidPairs: 2,
					ExpectedPackets: 345600, PacketsLost: 40000, HighLatency: 200,
					LossRate: 11.5741, HighLatencyRate: 0.0579, Grade: monitor.GradeNeedsImprovement, IPs: ips,
				},
				Completeness: monitor.Completeness{Network: monitor.NetworkManagement, ValidPairs: 1, PossiblePairs: 2, Coverage: 50},
				Days:         days,
			},
		},
	}
}

func createAlertsResult() *alerts.Result {
	trigger := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)
	rows := []alerts.WindowStats{
		{VM: "vm-01", Device: "tap01", Trigger: trigger, Level: "critical", Window: time.Minute, AvgTx: 1500.5, MaxTx: 2000, MinTx: 1000, DataPoints: 3},
		{VM: "vm-01", Device: "tap01", Trigger: trigger, Level: "critical", Window: 5 * time.Minute, AvgTx: 1200.25, MaxTx: 2000, MinTx: 400, DataPoints: 9},
	}
	return &alerts.Result{
		Windows:   []time.Duration{time.Minute, 5 * time.Minute},
		Alerts:    1,
		Points:    12,
		Malformed: 2,
		Rows:      rows,
		Summary: []alerts.VMSummary{{
			VM: "vm-01", Device: "tap01", Alerts: 1,
			Windows: []alerts.WindowSummary{
				{Window: time.Minute, AvgTx: 1500.5, MaxTx: 2000, MinTx: 1000, Samples: 1},
				{Window: 5 * time.Minute, AvgTx: 1200.25, MaxTx: 2000, MinTx: 400, Samples: 1},
			},
		}},
	}
}
