package report

import (
	"strconv"
	"time"

	"github.com/FeiLiu52/TVT-code/metrics"
)

// DetailedHeader is the column layout of the detailed result table: the output row schema
// followed by run bookkeeping columns.
var DetailedHeader = []string{
	"algorithm_name",
	"selected_node",
	"end_to_end_delay",
	"elapsed_time_ms",
	"expansion_vertex_count",
	"expansion_edge_count",
	"outcome",
	"run_id",
	"scale",
	"run",
	"sequence",
	"expansion_time_ms",
	"graph_memory_mb",
	"process_rss_mb",
}

// SummaryHeader is the column layout of the summary table.
var SummaryHeader = []string{
	"scale",
	"algorithm_name",
	"invocations",
	"selected",
	"no_feasible",
	"timeouts",
	"success_rate",
	"valid_runs",
	"total_runs",
	"delay_mean",
	"delay_variance",
	"elapsed_ms_mean",
	"elapsed_ms_variance",
	"vertices_mean",
	"vertices_variance",
	"edges_mean",
	"edges_variance",
	"expansion_ms_mean",
	"graph_memory_mb_mean",
	"process_rss_mb_mean",
	"delay_gap_mean",
	"delay_gap_variance",
	"delay_gap_samples",
}

// DetailedRow renders one record; null fields become empty cells.
func DetailedRow(rec metrics.Record) []string {
	node, delay, vertices, edges, expansion, graph := "", "", "", "", "", ""
	if rec.Node != nil {
		node = strconv.FormatInt(int64(*rec.Node), 10)
	}
	if rec.Delay != nil {
		delay = formatFloat(*rec.Delay)
	}
	if rec.Vertices != nil {
		vertices = strconv.Itoa(*rec.Vertices)
	}
	if rec.Edges != nil {
		edges = strconv.Itoa(*rec.Edges)
	}
	if rec.ExpansionTime != nil {
		expansion = formatFloat(ms(*rec.ExpansionTime))
	}
	if rec.GraphMB != nil {
		graph = formatFloat(*rec.GraphMB)
	}

	return []string{
		rec.Algorithm,
		node,
		delay,
		formatFloat(ms(rec.Elapsed)),
		vertices,
		edges,
		rec.Code(),
		rec.RunID,
		rec.Scale,
		strconv.Itoa(rec.Run),
		strconv.Itoa(rec.Sequence),
		expansion,
		graph,
		formatFloat(rec.ProcessRSSMB),
	}
}

func SummaryRow(s metrics.Summary) []string {
	return []string{
		s.Scale,
		s.Algorithm,
		strconv.Itoa(s.Invocations),
		strconv.Itoa(s.Selected),
		strconv.Itoa(s.NoFeasible),
		strconv.Itoa(s.Timeouts),
		formatFloat(s.SuccessRate),
		strconv.Itoa(s.ValidRuns),
		strconv.Itoa(s.TotalRuns),
		formatFloat(s.Delay.Mean),
		formatFloat(s.Delay.Variance),
		formatFloat(s.ElapsedMS.Mean),
		formatFloat(s.ElapsedMS.Variance),
		formatFloat(s.Vertices.Mean),
		formatFloat(s.Vertices.Variance),
		formatFloat(s.Edges.Mean),
		formatFloat(s.Edges.Variance),
		formatFloat(s.ExpansionMS.Mean),
		formatFloat(s.GraphMB.Mean),
		formatFloat(s.ProcessRSSMB.Mean),
		formatFloat(s.DelayGap.Mean),
		formatFloat(s.DelayGap.Variance),
		strconv.Itoa(s.DelayGapSamples),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
