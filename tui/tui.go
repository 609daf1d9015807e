package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/wxfsk/config"
	"github.com/jrwynneiii/wxfsk/demod"
	"github.com/jrwynneiii/wxfsk/dsp"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
)

const (
	MarkHz  = 2083.3333
	SpaceHz = 1562.5

	// tone gauges span this many dB below full scale
	gaugeFloorDB = 80
)

var LogOut *tview.TextView

// tonePercent maps a tone level in dB to a gauge percentage.
func tonePercent(db float64) float64 {
	return max(0, min(100, (db+gaugeFloorDB)*100/gaugeFloorDB))
}

func backlogPercent(s demod.Stats) float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Backlog) * 100 / float64(s.Capacity)
}

func newGauge(label string, warn, crit float64) *tvxwidgets.UtilModeGauge {
	g := tvxwidgets.NewUtilModeGauge()
	g.SetLabel(label)
	g.SetLabelColor(tcell.ColorLightSkyBlue)
	g.SetWarnPercentage(warn)
	g.SetCritPercentage(crit)
	g.SetEmptyColor(tcell.ColorBlack)
	g.SetBorder(false)
	return g
}

// StartUI runs the monitor until the user quits or ctx is cancelled. hex may
// be nil when decoded bytes go elsewhere.
func StartUI(ctx context.Context, demodulator *demod.Demodulator, hex *HexView, tuiConf config.TuiConf) error {
	app := tview.NewApplication()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	stats := &DecoderStats{}
	lockTable := tview.NewTable().SetContent(&LockTableData{stats: stats})

	signalPlot := tvxwidgets.NewPlot()
	signalPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	signalPlot.SetMarker(tvxwidgets.PlotMarkerBraille)

	markGauge := newGauge("Mark tone:      ", 101, 101)
	spaceGauge := newGauge("Space tone:     ", 101, 101)
	backlogGauge := newGauge("Sample backlog: ", 50, 90)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(markGauge, 0, 1, false)
	gaugeBox.AddItem(spaceGauge, 0, 1, false)
	gaugeBox.AddItem(backlogGauge, 0, 1, false)
	gaugeBox.SetTitle("Signal Stats")
	gaugeBox.SetBorder(true)

	hexOut := tview.NewTextView().SetDynamicColors(true)
	hexOut.SetBorder(true).SetTitle("Decoded Bytes")

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})

	LogOut.SetBorder(true).SetTitle("Log Output")
	if tuiConf.EnableLogOutput {
		log.SetOutput(LogOut)
	}
	lockTable.SetSelectable(false, false).SetBorder(false)

	decoderStats := tview.NewFlex().SetDirection(tview.FlexRow)
	decoderStats.AddItem(lockTable, 0, 1, false)
	decoderStats.SetBorder(true)
	decoderStats.SetTitle("Decoder Status")

	signalPlot.SetBorder(true)
	signalPlot.SetTitle(fmt.Sprintf("Audio Spectrum (0 - %d Hz)", demodulator.Config().SampleRate/2))

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(decoderStats, 0, 2, false)
	if hex != nil {
		leftCol.AddItem(hexOut, 0, 3, false)
	}

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 2, false)
	if tuiConf.EnableFFT {
		rightCol.AddItem(signalPlot, 0, 3, false)
	}
	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 2, false)
	}

	page.AddItem(leftCol, 0, 3, false)
	page.AddItem(rightCol, 0, 4, false)

	r := &refresher{
		demod:    demodulator,
		stats:    stats,
		hex:      hex,
		spectrum: dsp.NewSpectrum(tuiConf.FFTSize, float64(demodulator.Config().SampleRate)),
		fft:      tuiConf.EnableFFT,
		mark:     markGauge,
		space:    spaceGauge,
		backlog:  backlogGauge,
		plot:     signalPlot,
		hexOut:   hexOut,
		queue:    func(f func()) { app.QueueUpdateDraw(f) },
	}

	//Update Stats
	go func() {
		ticker := time.NewTicker(time.Duration(tuiConf.RefreshMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				r.refresh()
			}
		}
	}()

	err := app.SetRoot(page, true).EnableMouse(true).Run()
	cancel()
	if err != nil {
		return fmt.Errorf("could not start UI: %w", err)
	}
	return nil
}

// refresher samples the demodulator and hands the widget changes to queue,
// which runs them on the UI goroutine.
type refresher struct {
	demod    *demod.Demodulator
	stats    *DecoderStats
	hex      *HexView
	spectrum *dsp.Spectrum
	scope    []int16
	fft      bool

	mark    *tvxwidgets.UtilModeGauge
	space   *tvxwidgets.UtilModeGauge
	backlog *tvxwidgets.UtilModeGauge
	plot    *tvxwidgets.Plot
	hexOut  *tview.TextView

	queue func(func())
}

func (r *refresher) refresh() {
	s := r.demod.Stats()
	r.stats.Update(r.demod.InSync(), s)

	r.scope = r.demod.Scope(r.scope[:0])
	power := r.spectrum.PowerDB(r.scope[max(0, len(r.scope)-r.spectrum.Size()):])
	mark, space := r.spectrum.ToneDB(power, MarkHz), r.spectrum.ToneDB(power, SpaceHz)
	r.stats.SetTones(mark, space)

	var text string
	if r.hex != nil {
		text = r.hex.Text()
	}

	r.queue(func() {
		r.backlog.SetValue(backlogPercent(s))
		r.mark.SetValue(tonePercent(mark))
		r.space.SetValue(tonePercent(space))
		if r.fft {
			r.plot.SetData([][]float64{power})
		}
		if r.hex != nil {
			r.hexOut.SetText(text)
			r.hexOut.ScrollToEnd()
		}
	})
}
