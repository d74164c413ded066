package dse

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TrialSchema is the column layout of exported trial tables.
var TrialSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "rank", Type: arrow.PrimitiveTypes.Int64},
	{Name: "status", Type: arrow.BinaryTypes.String},
	{Name: "cfg_k_tile", Type: arrow.PrimitiveTypes.Int64},
	{Name: "pe_mac_per_cycle", Type: arrow.PrimitiveTypes.Int64},
	{Name: "token_overhead_cycles", Type: arrow.PrimitiveTypes.Int64},
	{Name: "perf_cycles", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "perf_tokens", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "perf_stall_in", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "perf_stall_out", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "cycles_per_token", Type: arrow.PrimitiveTypes.Float64},
	{Name: "tps_est_at_clock", Type: arrow.PrimitiveTypes.Float64},
	{Name: "area_proxy", Type: arrow.PrimitiveTypes.Float64},
	{Name: "score_tps_per_area", Type: arrow.PrimitiveTypes.Float64},
	{Name: "edp_proxy", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Record exports every trial as one record batch. The caller releases it.
func (r *Report) Record(mem memory.Allocator) arrow.Record {
	return trialRecord(mem, r.Trials)
}

// ParetoRecord exports the frontier as one record batch. The caller
// releases it.
func (r *Report) ParetoRecord(mem memory.Allocator) arrow.Record {
	return trialRecord(mem, r.Pareto)
}

func trialRecord(mem memory.Allocator, trials []Trial) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	b := array.NewRecordBuilder(mem, TrialSchema)
	defer b.Release()

	for _, t := range trials {
		b.Field(0).(*array.Int64Builder).Append(int64(t.RunID))
		b.Field(1).(*array.Int64Builder).Append(int64(t.Rank))
		b.Field(2).(*array.StringBuilder).Append(t.Status)
		b.Field(3).(*array.Int64Builder).Append(int64(t.KTile))
		b.Field(4).(*array.Int64Builder).Append(int64(t.PEMacPerCycle))
		b.Field(5).(*array.Int64Builder).Append(int64(t.TokenOverheadCycles))
		b.Field(6).(*array.Uint32Builder).Append(t.PerfCycles)
		b.Field(7).(*array.Uint32Builder).Append(t.PerfTokens)
		b.Field(8).(*array.Uint32Builder).Append(t.PerfStallIn)
		b.Field(9).(*array.Uint32Builder).Append(t.PerfStallOut)
		b.Field(10).(*array.Float64Builder).Append(t.CyclesPerToken)
		b.Field(11).(*array.Float64Builder).Append(t.TokensPerSec)
		b.Field(12).(*array.Float64Builder).Append(t.AreaProxy)
		b.Field(13).(*array.Float64Builder).Append(t.Score)
		b.Field(14).(*array.Float64Builder).Append(t.EDPProxy)
	}

	return b.NewRecord()
}

// WriteArrow writes rec to w in the Arrow IPC file format.
func WriteArrow(w io.Writer, mem memory.Allocator, rec arrow.Record) error {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to open arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	return fw.Close()
}

// WriteArrowFile writes the trial table, or only the frontier when pareto is
// set, to an Arrow IPC file at path.
func (r *Report) WriteArrowFile(path string, pareto bool) error {
	mem := memory.DefaultAllocator
	rec := r.Record(mem)
	if pareto {
		rec.Release()
		rec = r.ParetoRecord(mem)
	}
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteArrow(f, mem, rec); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// PrintResults writes a summary and the top n trials.
func (r *Report) PrintResults(w io.Writer, n int) {
	_, _ = fmt.Fprintln(w, "=== DSE Autotune Summary ===")
	_, _ = fmt.Fprintf(w, "  Dim:        %d\n", r.Options.Dim)
	_, _ = fmt.Fprintf(w, "  Prompt/Gen: %d/%d\n", r.Options.PromptLen, r.Options.GenLen)
	_, _ = fmt.Fprintf(w, "  Clock:      %.1f MHz\n", float64(r.Options.Clock)/1e6)
	_, _ = fmt.Fprintf(w, "  Trials:     %d\n", len(r.Trials))
	_, _ = fmt.Fprintf(w, "  Pareto:     %d\n", len(r.Pareto))
	_, _ = fmt.Fprintln(w, "")

	_, _ = fmt.Fprintf(w, "%-5s %-6s %-7s %-9s %-9s %-12s %-14s %-8s %-12s\n",
		"rank", "k_tile", "pe_mac", "overhead", "cyc/tok", "tps_est", "area_proxy", "status", "score")
	for i, t := range r.Trials {
		if n > 0 && i >= n {
			break
		}
		_, _ = fmt.Fprintf(w, "%-5d %-6d %-7d %-9d %-9.3f %-12.1f %-14.1f %-8s %-12.3f\n",
			t.Rank, t.KTile, t.PEMacPerCycle, t.TokenOverheadCycles,
			t.CyclesPerToken, t.TokensPerSec, t.AreaProxy, t.Status, t.Score)
	}
}

// PrintCSV writes every trial in rank order.
func (r *Report) PrintCSV(w io.Writer) {
	_, _ = fmt.Fprintln(w,
		"run_id,status,cfg_k_tile,pe_mac_per_cycle,token_overhead_cycles,prompt_len,gen_len,"+
			"perf_cycles,perf_tokens,perf_stall_in,perf_stall_out,cycles_per_token,"+
			"tps_est_at_clock,area_proxy,score_tps_per_area,edp_proxy")
	for _, t := range r.Trials {
		_, _ = fmt.Fprintf(w, "%d,%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			t.RunID, t.Status, t.KTile, t.PEMacPerCycle, t.TokenOverheadCycles,
			t.PromptLen, t.GenLen, t.PerfCycles, t.PerfTokens, t.PerfStallIn,
			t.PerfStallOut, t.CyclesPerToken, t.TokensPerSec, t.AreaProxy,
			t.Score, t.EDPProxy)
	}
}
