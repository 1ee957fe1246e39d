package demography

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// PopulationParameters summarises one population over an epoch.
type PopulationParameters struct {
	StartSize  float64
	EndSize    float64
	GrowthRate float64
}

// Epoch is a time window within which the demographic parameters are fixed.
type Epoch struct {
	Start       float64
	End         float64
	Populations []PopulationParameters
	Migration   [][]float64
	Events      []Event
}

// Debugger replays a model's events without lineages to show how the
// parameters change over time.
type Debugger struct {
	model  Model
	epochs []Epoch
}

type noopMover struct{}

func (noopMover) MassMigrate(int, int, float64) error        { return nil }
func (noopMover) SimpleBottleneck(int, float64) error        { return nil }
func (noopMover) InstantaneousBottleneck(int, float64) error { return nil }
func (noopMover) Census() error                              { return nil }

func NewDebugger(m Model) (*Debugger, error) {
	if err := m.Validate(0); err != nil {
		return nil, err
	}
	d := &Debugger{model: m}
	state := NewState(m, 0)
	start := 0.0
	var pending []Event
	for {
		end := state.NextEventTime()
		epoch := Epoch{
			Start:     start,
			End:       end,
			Migration: state.MigrationMatrix(),
			Events:    pending,
		}
		for j := 0; j < state.NumPopulations(); j++ {
			p := state.Population(j)
			epoch.Populations = append(epoch.Populations, PopulationParameters{
				StartSize:  p.SizeAt(start),
				EndSize:    p.SizeAt(end),
				GrowthRate: p.GrowthRate,
			})
		}
		d.epochs = append(d.epochs, epoch)
		if math.IsInf(end, 1) {
			break
		}
		e, err := state.ApplyNext(noopMover{})
		if err != nil {
			return nil, err
		}
		pending = []Event{e}
		start = end
	}
	return d, nil
}

func (d *Debugger) Epochs() []Epoch { return d.epochs }
func (d *Debugger) NumEpochs() int  { return len(d.epochs) }

// EpochTimes returns the start time of each epoch.
func (d *Debugger) EpochTimes() []float64 {
	out := make([]float64, len(d.epochs))
	for i, e := range d.epochs {
		out[i] = e.Start
	}
	return out
}

// SizeTrajectory returns sizes[i][j], the size of population j at steps[i].
func (d *Debugger) SizeTrajectory(steps []float64) [][]float64 {
	out := make([][]float64, len(steps))
	for i, t := range steps {
		epoch := d.epochAt(t)
		row := make([]float64, len(epoch.Populations))
		for j, p := range epoch.Populations {
			row[j] = p.StartSize * math.Exp(-p.GrowthRate*(t-epoch.Start))
		}
		out[i] = row
	}
	return out
}

func (d *Debugger) epochAt(t float64) Epoch {
	for _, e := range d.epochs {
		if t < e.End {
			return e
		}
	}
	return d.epochs[len(d.epochs)-1]
}

// PrintHistory writes one table per epoch with sizes, growth rates and the
// migration matrix.
func (d *Debugger) PrintHistory(w io.Writer) error {
	for _, epoch := range d.epochs {
		if len(epoch.Events) > 0 {
			if _, err := fmt.Fprintf(w, "Events @ generation %s\n", formatTime(epoch.Start)); err != nil {
				return err
			}
			for _, e := range epoch.Events {
				if _, err := fmt.Fprintf(w, "   - %s\n", e); err != nil {
					return err
				}
			}
		}
		title := fmt.Sprintf("Epoch: %s -- %s generations", formatTime(epoch.Start), formatTime(epoch.End))

		tbl := table.NewWriter()
		tbl.SetStyle(table.StyleLight)
		tbl.SetTitle(title)
		header := table.Row{"", "start", "end", "growth_rate"}
		for k := range epoch.Migration {
			header = append(header, d.populationLabel(k))
		}
		tbl.AppendHeader(header)
		for j, p := range epoch.Populations {
			row := table.Row{d.populationLabel(j), formatValue(p.StartSize), formatValue(p.EndSize), formatValue(p.GrowthRate)}
			for _, rate := range epoch.Migration[j] {
				row = append(row, formatValue(rate))
			}
			tbl.AppendRow(row)
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", tbl.Render()); err != nil {
			return err
		}
	}
	return nil
}

func (d *Debugger) populationLabel(j int) string {
	if name := d.model.Populations[j].Name; name != "" {
		return name
	}
	return strconv.Itoa(j)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 3, 64)
}

func formatTime(t float64) string {
	if math.IsInf(t, 1) {
		return "inf"
	}
	return strconv.FormatFloat(t, 'g', -1, 64)
}
