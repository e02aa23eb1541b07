package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleWaveform renders a line chart (HTML) of the recent ring buffer
// contents using go-echarts. Debugging-only endpoint (no auth).
// Query params:
//   - n    (optional; default 500) number of most recent samples
//   - axes (optional; "1" overlays per-axis series on the magnitude trace)
func (ws *WebServer) handleWaveform(w http.ResponseWriter, r *http.Request) {
	n := 500
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 10 && v <= 10000 {
			n = v
		}
	}
	showAxes := r.URL.Query().Get("axes") == "1"

	samples := ws.engine.Buffer().Recent(n)
	if len(samples) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "buffer is empty")
		return
	}

	xLabels := make([]string, len(samples))
	magData := make([]opts.LineData, len(samples))
	base := samples[0].Timestamp
	for i, s := range samples {
		xLabels[i] = strconv.FormatInt(s.Timestamp-base, 10)
		magData[i] = opts.LineData{Value: s.Magnitude()}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Signal Waveform", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Filtered Signal", Subtitle: fmt.Sprintf("samples=%d baseline=%.3f generated=%s", len(samples), ws.engine.Segmenter().Baseline(), time.Now().Format(time.RFC3339))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "magnitude", NameLocation: "middle", NameGap: 30}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xLabels).
		AddSeries("magnitude", magData, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	if showAxes {
		axisNames := []string{"ax", "ay", "az", "gx", "gy", "gz"}
		for axis := 0; axis < len(axisNames); axis++ {
			series := make([]opts.LineData, len(samples))
			empty := true
			for i, s := range samples {
				v := s.Axis(axis)
				if v != 0 {
					empty = false
				}
				series[i] = opts.LineData{Value: v}
			}
			if empty {
				continue
			}
			line.AddSeries(axisNames[axis], series, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
		}
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
