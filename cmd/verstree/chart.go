package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/verstree/pkg/history"
	"github.com/Sumatoshi-tech/verstree/pkg/nodey"
)

const (
	chartHeight = "420px"
	chartWidth  = "100%"
)

var chartKinds = []nodey.Kind{
	nodey.KindCode, nodey.KindCodeCell, nodey.KindMarkdown, nodey.KindOutput, nodey.KindNotebook,
}

// checkpointCounts holds per-kind version counts for every checkpoint.
type checkpointCounts struct {
	labels []string
	byKind map[nodey.Kind][]int
	total  []int
}

func countVersions(store *history.Store) checkpointCounts {
	cps := store.Checkpoints()
	counts := checkpointCounts{
		labels: make([]string, len(cps)),
		byKind: make(map[nodey.Kind][]int, len(chartKinds)),
		total:  make([]int, len(cps)),
	}

	for _, k := range chartKinds {
		counts.byKind[k] = make([]int, len(cps))
	}

	for i, cp := range cps {
		counts.labels[i] = strconv.Itoa(cp.ID) + " " + string(cp.Kind)
	}

	for _, key := range store.Keys() {
		for _, n := range store.VersionsOf(key) {
			cp := n.Common().Created
			if cp < 0 || cp >= len(cps) {
				continue
			}

			counts.byKind[n.Kind()][cp]++
		}
	}

	running := 0
	for i := range cps {
		for _, k := range chartKinds {
			running += counts.byKind[k][i]
		}

		counts.total[i] = running
	}

	return counts
}

func versionsBar(c checkpointCounts) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Versions per checkpoint", Subtitle: "new versions appended, by node kind"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
	)
	bar.SetXAxis(c.labels)

	for _, k := range chartKinds {
		data := make([]opts.BarData, len(c.labels))
		for i, v := range c.byKind[k] {
			data[i] = opts.BarData{Value: v}
		}

		bar.AddSeries(k.String(), data, charts.WithBarChartOpts(opts.BarChart{Stack: "versions"}))
	}

	return bar
}

func totalLine(c checkpointCounts) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Stored versions"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(c.labels)

	data := make([]opts.LineData, len(c.total))
	for i, v := range c.total {
		data[i] = opts.LineData{Value: v}
	}

	line.AddSeries("total", data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return line
}

func renderChart(w io.Writer, store *history.Store) error {
	counts := countVersions(store)

	page := components.NewPage()
	page.PageTitle = "verstree history"
	page.AddCharts(versionsBar(counts), totalLine(counts))

	return page.Render(w)
}

func chartCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Render the version history as an HTML chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}

			if output == "" {
				return renderChart(cmd.OutOrStdout(), store)
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			if err := renderChart(file, store); err != nil {
				file.Close()

				return err
			}

			if err := file.Close(); err != nil {
				return err
			}

			a.printf(cmd.OutOrStdout(), "wrote %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "HTML file to write (default: stdout)")

	return cmd
}
