package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v3"

	"github.com/raywall/defect-metrics/analyzer"
)

// Formats accepted by Write.
const (
	FormatTable      = "table"
	FormatJSON       = "json"
	FormatYAML       = "yaml"
	FormatPrometheus = "prom"
)

// Write renders r in the named format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", FormatTable:
		return r.WriteTable(w)
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatYAML:
		return r.WriteYAML(w)
	case FormatPrometheus:
		return r.WritePrometheus(w)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// WriteTable renders an aligned plain-text summary.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Generated at:\t%s\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(tw, "Open defects:\t%d\t(weighted %d)\n\n", r.Open.Total, r.Open.Weighted)

	fmt.Fprintln(tw, "WEEKS\tCLOSED\tOPENED\tW.CLOSED\tW.OPENED\tEFFECTIVENESS\tBURN-DOWN (YEARS)")
	for _, row := range r.Windows {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			row.Weeks,
			row.Closed.Total,
			row.Opened.Total,
			row.Closed.Weighted,
			row.Opened.Weighted,
			analyzer.FormatEffectiveness(float64(row.Effectiveness)),
			analyzer.FormatSignificant(float64(row.BurnDownYears), 3),
		)
	}
	return tw.Flush()
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// WriteYAML renders the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// Export writes the report to filename as JSON.
func (r *Report) Export(filename string) error {
	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, jsonData, 0644)
}

func ptr[T any](v T) *T { return &v }

type family struct {
	name, help string
	metrics    []*dto.Metric
}

func (f *family) add(v float64, labels ...string) {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: ptr(v)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{Name: ptr(labels[i]), Value: ptr(labels[i+1])})
	}
	f.metrics = append(f.metrics, m)
}

func (f *family) proto() *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(f.name),
		Help:   ptr(f.help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: f.metrics,
	}
}

func addCounts(count, weighted *family, c Counts, labels ...string) {
	for i, s := range analyzer.Severities() {
		count.add(float64(c.bySeverity()[i]), append(append([]string{}, labels...), "severity", s.String())...)
	}
	weighted.add(float64(c.Weighted), labels...)
}

// WritePrometheus renders the report in the Prometheus text exposition format.
func (r *Report) WritePrometheus(w io.Writer) error {
	families := map[string]*family{}
	get := func(name, help string) *family {
		if f, ok := families[name]; ok {
			return f
		}
		f := &family{name: name, help: help}
		families[name] = f
		return f
	}

	addCounts(
		get("defects_open", "Unresolved defects by severity."),
		get("defects_open_weighted", "Severity-weighted score of unresolved defects."),
		r.Open,
	)
	for _, row := range r.Windows {
		weeks := strconv.Itoa(row.Weeks)
		addCounts(
			get("defects_closed", "Defects resolved in the window by severity."),
			get("defects_closed_weighted", "Severity-weighted score of defects resolved in the window."),
			row.Closed, "weeks", weeks,
		)
		addCounts(
			get("defects_opened", "Defects filed in the window by severity."),
			get("defects_opened_weighted", "Severity-weighted score of defects filed in the window."),
			row.Opened, "weeks", weeks,
		)
		get("defects_maintenance_effectiveness", "Weighted closed to opened ratio.").
			add(float64(row.Effectiveness), "weeks", weeks)
		get("defects_burn_down_years", "Projected years to clear the open backlog.").
			add(float64(row.BurnDownYears), "weeks", weeks)
	}

	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := expfmt.MetricFamilyToText(w, families[name].proto()); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
