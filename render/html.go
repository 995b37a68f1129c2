// Package render writes the self-contained HTML chart of a price run: a
// canvas scatter of every implied-price sample across the block window,
// annotated with the consensus price.
package render

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/utxoracle/utxoracled/oracle"
)

// FileName returns the conventional output name for a run:
// UTXOracle_<YYYY-MM-DD>.html in date mode,
// UTXOracle_<start>-<end>.html in recent mode.
func FileName(result *oracle.PriceResult) string {
	return fmt.Sprintf("UTXOracle_%s.html", result.Window())
}

type chartPoint struct {
	X     float64 // evenly spaced pseudo-height, keeps the scatter smooth
	Price float64
	Block int
	Time  int64
}

type chartData struct {
	Width, Height int
	TitleLeft     template.JS
	TitleRight    template.JS
	BottomNote1   template.JS
	BottomNote2   template.JS
	Points        []chartPoint
	TickIndexes   []int
	CentralPrice  int
	PriceLow      float64
	PriceHigh     float64
}

// WriteChart renders the run's sample scatter into dir and returns the
// full path of the written file.
func WriteChart(result *oracle.PriceResult, points []oracle.PricePoint, dir string) (string, error) {
	lo := float64(result.Price) * (1 - result.Band)
	hi := float64(result.Price) * (1 + result.Band)

	var kept []chartPoint
	for _, p := range points {
		if lo < p.Price && p.Price < hi {
			kept = append(kept, chartPoint{Price: p.Price, Block: p.Height, Time: p.Time})
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Block < kept[j].Block })

	// Spread samples evenly across the x axis; per-block clumping reads
	// poorly when a few blocks dominate the sample count.
	start, end := result.StartHeight, result.EndHeight
	step := 0.0
	if len(kept) > 1 {
		step = float64(end-start) / float64(len(kept)-1)
	}
	for i := range kept {
		kept[i].X = float64(start) + float64(i)*step
	}

	ticks := make([]int, 0, 5)
	if n := len(kept); n > 0 {
		for i := 0; i < 5; i++ {
			ticks = append(ticks, i*(n-1)/4)
		}
	}

	data := chartData{
		Width:        1000,
		Height:       660,
		Points:       kept,
		TickIndexes:  ticks,
		CentralPrice: result.Price,
		PriceLow:     lo,
		PriceHigh:    hi,
	}
	if result.Date != "" {
		data.TitleLeft = template.JS(fmt.Sprintf("%q", result.Date+" blocks from local node"))
		data.TitleRight = template.JS(fmt.Sprintf("%q", fmt.Sprintf("UTXOracle Consensus Price $%d", result.Price)))
		data.BottomNote1 = template.JS(`"Consensus Data:"`)
		data.BottomNote2 = template.JS(`"this plot is identical and immutable for every bitcoin node"`)
	} else {
		data.TitleLeft = template.JS(fmt.Sprintf("%q", fmt.Sprintf("Local Node Blocks %d-%d", start, end)))
		data.TitleRight = template.JS(fmt.Sprintf("%q", fmt.Sprintf("UTXOracle Block Window Price $%d", result.Price)))
		data.BottomNote1 = template.JS(`"* Block Window Price"`)
		data.BottomNote2 = template.JS(`"may have node dependent differences on the chain tip"`)
	}

	path := filepath.Join(dir, FileName(result))
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating chart file")
	}
	defer f.Close()
	if err := chartTemplate.Execute(f, data); err != nil {
		return "", errors.Wrap(err, "rendering chart")
	}
	return path, nil
}

// utcLabel formats a Unix timestamp as an HH:MM UTC tick label.
func utcLabel(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("%02d:%02d UTC", t.Hour(), t.Minute())
}

var chartTemplate = template.Must(template.New("chart").Funcs(template.FuncMap{
	"utcLabel": utcLabel,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<title>UTXOracle Local</title>
<style>
  body { background-color: black; margin: 0; color: #CCCCCC; font-family: Arial, sans-serif; text-align: center; }
  canvas { background-color: black; display: block; margin: auto; }
</style>
</head>
<body>
<div style="position: relative; width: 95%; max-width: {{.Width}}px; margin: auto;">
  <canvas id="chart" style="width: 100%; height: auto;" width="{{.Width}}" height="{{.Height}}"></canvas>
</div>
<script>
const canvas = document.getElementById('chart');
const ctx = canvas.getContext('2d');
const width = {{.Width}}, height = {{.Height}};
const marginLeft = 120, marginRight = 90, marginTop = 100, marginBottom = 120;
const plotWidth = width - marginLeft - marginRight;
const plotHeight = height - marginTop - marginBottom;

const xs = [{{range .Points}}{{.X}},{{end}}];
const prices = [{{range .Points}}{{.Price}},{{end}}];
const blocks = [{{range .Points}}{{.Block}},{{end}}];
const tickIdx = [{{range .TickIndexes}}{{.}},{{end}}];
const tickLabels = [{{range $i := .TickIndexes}}{{with index $.Points $i}}"{{.Block}}\n{{utcLabel .Time}}",{{end}}{{end}}];

const ymin = {{.PriceLow}}, ymax = {{.PriceHigh}};
const xmin = Math.min(...xs), xmax = Math.max(...xs);
function scaleX(t) { return marginLeft + (t - xmin) / (xmax - xmin) * plotWidth; }
function scaleY(p) { return marginTop + (1 - (p - ymin) / (ymax - ymin)) * plotHeight; }

ctx.fillStyle = "black";
ctx.fillRect(0, 0, width, height);

ctx.font = "bold 36px Arial";
ctx.textAlign = "center";
ctx.fillStyle = "cyan";
ctx.fillText("UTXOracle", width / 2 - 60, 40);
ctx.fillStyle = "lime";
ctx.fillText("Local", width / 2 + 95, 40);

ctx.font = "24px Arial";
ctx.textAlign = "right";
ctx.fillStyle = "white";
ctx.fillText({{.TitleLeft}}, width / 2, 80);
ctx.textAlign = "left";
ctx.fillStyle = "lime";
ctx.fillText({{.TitleRight}}, width / 2 + 10, 80);

ctx.strokeStyle = "white";
ctx.lineWidth = 1;
ctx.strokeRect(marginLeft, marginTop, plotWidth, plotHeight);

ctx.fillStyle = "white";
ctx.font = "20px Arial";
for (let i = 0; i <= 5; i++) {
  let p = ymin + (ymax - ymin) * i / 5;
  let y = scaleY(p);
  ctx.beginPath();
  ctx.moveTo(marginLeft - 5, y);
  ctx.lineTo(marginLeft, y);
  ctx.stroke();
  ctx.textAlign = "right";
  ctx.fillText(Math.round(p).toLocaleString(), marginLeft - 10, y + 4);
}

ctx.textAlign = "center";
ctx.font = "16px Arial";
for (let i = 0; i < tickIdx.length; i++) {
  let x = scaleX(xs[tickIdx[i]]);
  ctx.beginPath();
  ctx.moveTo(x, marginTop + plotHeight);
  ctx.lineTo(x, marginTop + plotHeight + 5);
  ctx.stroke();
  let parts = tickLabels[i].split("\n");
  ctx.fillText(parts[0], x, marginTop + plotHeight + 20);
  ctx.fillText(parts[1], x, marginTop + plotHeight + 40);
}

ctx.fillStyle = "white";
ctx.font = "20px Arial";
ctx.textAlign = "center";
ctx.fillText("Block Height and UTC Time", marginLeft + plotWidth / 2, height - 48);
ctx.save();
ctx.translate(20, marginTop + plotHeight / 2);
ctx.rotate(-Math.PI / 2);
ctx.fillText("BTC Price ($)", 0, 0);
ctx.restore();

ctx.fillStyle = "cyan";
for (let i = 0; i < xs.length; i++) {
  ctx.fillRect(scaleX(xs[i]), scaleY(prices[i]), .75, .75);
}

ctx.font = "20px Arial";
ctx.textAlign = "left";
ctx.fillText("- " + ({{.CentralPrice}}).toLocaleString(), marginLeft + plotWidth + 1, scaleY({{.CentralPrice}}));

ctx.font = "24px Arial";
ctx.fillStyle = "lime";
ctx.textAlign = "right";
ctx.fillText({{.BottomNote1}}, 320, height - 10);
ctx.fillStyle = "white";
ctx.textAlign = "left";
ctx.fillText({{.BottomNote2}}, 325, height - 10);
</script>
</body>
</html>
`))
