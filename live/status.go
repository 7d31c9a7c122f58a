package live

import (
	"fmt"
	"io"
	"math"
	"text/template"

	"github.com/Masterminds/sprig"
)

type (
	// StatusSnapshot is what the headless front end prints on every poll.
	StatusSnapshot struct {
		Position  float64 // percent of the loop played
		Critical  float64 // percent of the loop after which commits are late
		Duty      float64 // percent of real time spent rendering
		Buffered  float64 // seconds
		Underruns int64
		Muted     bool
		ShortBars int // block peak, 0..MeterBars
		LongBars  int
		Tracks    []TrackView
	}

	StatusFormatter struct {
		tmpl *template.Template
	}
)

// MeterBars is the resolution of the bar meters in a StatusSnapshot.
const MeterBars = 20

const DefaultStatusTemplate = `[{{ repeat .ShortBars "#" }}{{ repeat (sub 20 .ShortBars | int) " " }}] ` +
	`loop {{ printf "%5.1f" .Position }}%{{ if ge .Position .Critical }}!{{ else }} {{ end }}` +
	`duty {{ printf "%4.1f" .Duty }}% buf {{ printf "%.2f" .Buffered }}s` +
	`{{ if .Muted }} MUTED{{ end }}{{ if .Underruns }} underruns {{ .Underruns }}{{ end }} |` +
	`{{ range .Tracks }} {{ .Track | toString | trunc 12 }}={{ default "-" .Sequence }}` +
	`{{ if .PendingDelete }}(del){{ end }}{{ if .HasQueued }}>{{ default "?" .Queued }}{{ end }}{{ end }}`

func NewStatusFormatter(text string) (*StatusFormatter, error) {
	if text == "" {
		text = DefaultStatusTemplate
	}
	tmpl, err := template.New("status").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("could not parse status template: %w", err)
	}
	return &StatusFormatter{tmpl: tmpl}, nil
}

func (f *StatusFormatter) Format(w io.Writer, s StatusSnapshot) error {
	if err := f.tmpl.Execute(w, s); err != nil {
		return fmt.Errorf("could not format status: %w", err)
	}
	return nil
}

// Bars converts a linear peak level to a bar count on a 60 dB scale.
func Bars(level float32) int {
	if level <= 0 {
		return 0
	}
	db := 20 * math.Log10(float64(level))
	n := int(math.Round((db + 60) / 60 * MeterBars))
	return max(0, min(n, MeterBars))
}
