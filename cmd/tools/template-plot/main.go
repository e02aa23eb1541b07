// Command template-plot renders the magnitude traces of a gesture class's
// templates to a PNG, for eyeballing template consistency after a recording
// session.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gestures/internal/gesture"
	"github.com/banshee-data/gestures/internal/gesture/storage/sqlite"
)

var (
	dbFile    = flag.String("db", "gestures.db", "Path to the SQLite database file")
	libFile   = flag.String("library", "", "JSON library export to read instead of the database")
	gestureID = flag.String("gesture", "", "Gesture ID to plot (required)")
	outFile   = flag.String("out", "", "Output PNG path (default <gesture>.png)")
)

var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
}

func loadClass() (*gesture.GestureClass, error) {
	if *libFile != "" {
		data, err := os.ReadFile(*libFile)
		if err != nil {
			return nil, err
		}
		lib := gesture.NewLibrary()
		if err := lib.Import(data); err != nil {
			return nil, fmt.Errorf("import library: %w", err)
		}
		class, ok := lib.Class(*gestureID)
		if !ok {
			return nil, gesture.ErrUnknownGesture
		}
		return class, nil
	}

	store, err := sqlite.Open(*dbFile)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	classes, err := store.LoadLibrary()
	if err != nil {
		return nil, err
	}
	for _, c := range classes {
		if c.Definition.ID == *gestureID {
			return c, nil
		}
	}
	return nil, gesture.ErrUnknownGesture
}

func main() {
	flag.Parse()
	if *gestureID == "" {
		log.Fatal("-gesture is required")
	}

	class, err := loadClass()
	if err != nil {
		log.Fatalf("load gesture %s: %v", *gestureID, err)
	}
	if len(class.Templates) == 0 {
		log.Fatalf("gesture %s has no templates", *gestureID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Template Magnitudes (%d templates)", class.Definition.Name, len(class.Templates))
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Magnitude"
	p.Legend.Top = true

	for i, tpl := range class.Templates {
		mags := tpl.Magnitudes()
		pts := make(plotter.XYs, len(mags))
		for j, m := range mags {
			pts[j].X = float64(j)
			pts[j].Y = m
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			log.Fatalf("template %d: %v", i, err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("rep %d", i+1), line)
	}

	out := *outFile
	if out == "" {
		out = *gestureID + ".png"
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
		log.Fatalf("save plot: %v", err)
	}
	log.Printf("wrote %s", out)
}
