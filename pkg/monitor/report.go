package monitor

// DefaultHotspots is how many worst days the report lists per network.
const DefaultHotspots = 5

// DayMatrices holds every matrix kind of one day.
type DayMatrices struct {
	Date     string            `json:"date"`
	Matrices map[string]Matrix `json:"matrices"`
}

// NetworkReport is everything reported about one network.
type NetworkReport struct {
	Summary      Summary       `json:"summary"`
	Hotspots     []Hotspot     `json:"hotspots,omitempty"`
	Completeness Completeness  `json:"completeness"`
	Trend        string        `json:"trend,omitempty"`
	Days         []DayMatrices `json:"days,omitempty"`
}

// Report is the rendered-ready view of a monitor Result.
type Report struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	DailyPackets int    `json:"daily_packets_per_pair"`

	Networks []NetworkReport `json:"networks"`

	Files       int      `json:"files"`
	Entries     int      `json:"entries"`
	Malformed   int      `json:"malformed"`
	MissingDirs []string `json:"missing_dirs,omitempty"`
}

// NewReport derives the summaries, matrices and findings of r.
func NewReport(name string, r *Result) *Report {
	rep := &Report{
		Name:         name,
		Source:       r.Source,
		DailyPackets: r.DailyPackets,
		Files:        r.Files,
		Entries:      r.Entries,
		Malformed:    r.Malformed,
		MissingDirs:  r.MissingDirs,
	}

	for _, n := range Networks {
		ns := r.Networks[n]
		if ns == nil {
			continue
		}
		nr := NetworkReport{
			Summary:      r.Summarize(n),
			Hotspots:     r.Hotspots(n, DefaultHotspots),
			Completeness: r.Completeness(n),
			Trend:        r.Trend(n),
		}
		for _, date := range ns.Dates() {
			dm := DayMatrices{Date: date, Matrices: make(map[string]Matrix)}
			for _, kind := range MatrixKinds {
				dm.Matrices[kind] = r.DailyMatrix(n, date, kind)
			}
			nr.Days = append(nr.Days, dm)
		}
		rep.Networks = append(rep.Networks, nr)
	}
	return rep
}

// Comparison names the network with the higher rate and by how many
// percentage points, for loss and high latency. ok is false unless both
// networks have data.
func (r *Report) Comparison() (loss, latency RateDiff, ok bool) {
	if len(r.Networks) != 2 || !r.Networks[0].Summary.HasData || !r.Networks[1].Summary.HasData {
		return RateDiff{}, RateDiff{}, false
	}
	a, b := r.Networks[0].Summary, r.Networks[1].Summary
	return diff(a.Network, b.Network, a.LossRate, b.LossRate),
		diff(a.Network, b.Network, a.HighLatencyRate, b.HighLatencyRate), true
}

// RateDiff says which network is worse and by how much.
type RateDiff struct {
	Worse  Network
	Better Network
	Diff   float64
}

func diff(a, b Network, ra, rb float64) RateDiff {
	if ra > rb {
		return RateDiff{Worse: a, Better: b, Diff: ra - rb}
	}
	return RateDiff{Worse: b, Better: a, Diff: rb - ra}
}

// Recommendations are the standing operational advice of the summary.
var Recommendations = []string{
	"Continuous monitoring: keep probing network quality continuously.",
	"Alerting: alert when the packet loss rate exceeds 0.1%.",
	"Focus: watch the nodes named in the hotspots closely.",
	"Regular review: analyze network quality weekly.",
}
