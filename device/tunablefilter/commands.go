package tunablefilter

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	pongo2 "github.com/flosch/pongo2/v5"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-motor/motor"
	"github.com/arloliu/go-motor/serialline"
)

// Default wavelength range in nanometers.
const (
	DefaultMinWavelength = 420.0
	DefaultMaxWavelength = 730.0
)

// CommandFile is the YAML description of a tunable filter: its serial
// settings and the command templates of its protocol.
//
// WRITE_WL is rendered with the target wavelength. A template containing
// "{{" is a pongo2 template receiving the variable "wl"; any other template
// is a printf format such as "WL=%5.3f\r" or "WL=%d\r".
type CommandFile struct {
	WriteWL    string `yaml:"WRITE_WL"`
	ReadWL     string `yaml:"READ_WL"`
	Reset      string `yaml:"RESET"`
	ReadStatus string `yaml:"READ_STATUS"`
	BusyCheck  string `yaml:"BUSY_CHECK"`
	Escape     string `yaml:"ESCAPE"`

	Port        string  `yaml:"PORT"`
	Speed       int     `yaml:"SPEED"`
	DataBits    int     `yaml:"DATABITS"`
	Parity      string  `yaml:"PARITY"`
	StopBits    float64 `yaml:"STOPBITS"`
	FlowControl bool    `yaml:"FLOWCONTROLL"`

	MinWavelength float64 `yaml:"MIN_WL"`
	MaxWavelength float64 `yaml:"MAX_WL"`

	writeWL *command
}

// LoadCommandFile reads and validates a command file.
func LoadCommandFile(path string) (*CommandFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tunablefilter: %w", err)
	}

	return ParseCommandFile(data)
}

// ParseCommandFile parses and validates a command file.
func ParseCommandFile(data []byte) (*CommandFile, error) {
	f := &CommandFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("tunablefilter: parse command file: %w", err)
	}

	if f.WriteWL == "" || f.ReadWL == "" {
		return nil, errors.New("tunablefilter: WRITE_WL and READ_WL are required")
	}

	if f.MinWavelength == 0 && f.MaxWavelength == 0 {
		f.MinWavelength, f.MaxWavelength = DefaultMinWavelength, DefaultMaxWavelength
	}
	if !f.Range().Valid() {
		return nil, fmt.Errorf("tunablefilter: invalid wavelength range [%g, %g]", f.MinWavelength, f.MaxWavelength)
	}

	cmd, err := compileCommand(f.WriteWL)
	if err != nil {
		return nil, err
	}
	f.writeWL = cmd

	return f, nil
}

// Range returns the wavelength range.
func (f *CommandFile) Range() motor.Range {
	return motor.Range{Min: f.MinWavelength, Max: f.MaxWavelength}
}

// LineOptions converts the serial settings of the file to line options.
// Zero values keep the line defaults. Flow control is not supported by the
// line and is ignored.
func (f *CommandFile) LineOptions() ([]serialline.Option, error) {
	var opts []serialline.Option

	if f.Speed > 0 {
		opts = append(opts, serialline.WithBaudRate(f.Speed))
	}
	if f.DataBits > 0 {
		opts = append(opts, serialline.WithDataBits(f.DataBits))
	}

	parity, err := serialline.ParseParity(f.Parity)
	if err != nil {
		return nil, err
	}
	opts = append(opts, serialline.WithParity(parity))

	stopBits, err := serialline.ParseStopBits(f.StopBits)
	if err != nil {
		return nil, fmt.Errorf("tunablefilter: STOPBITS: %w", err)
	}
	opts = append(opts, serialline.WithStopBits(stopBits))

	return opts, nil
}

// RenderWriteWL renders the WRITE_WL command for wavelength wl.
func (f *CommandFile) RenderWriteWL(wl float64) (string, error) {
	return f.writeWL.render(wl)
}

var printfVerb = regexp.MustCompile(`%[-+ #0]*[0-9]*(?:\.[0-9]+)?([a-zA-Z])`)

type command struct {
	format string
	intArg bool
	tpl    *pongo2.Template
}

var templateSet = pongo2.NewSet("tunablefilter", pongo2.DefaultLoader)

func compileCommand(raw string) (*command, error) {
	if strings.Contains(raw, "{{") {
		tpl, err := templateSet.FromString(raw)
		if err != nil {
			return nil, fmt.Errorf("tunablefilter: compile template %q: %w", raw, err)
		}

		return &command{tpl: tpl}, nil
	}

	verbs := printfVerb.FindAllStringSubmatchIndex(raw, -1)
	if len(verbs) != 1 {
		return nil, fmt.Errorf("tunablefilter: template %q needs exactly one format verb", raw)
	}

	cmd := &command{format: raw}
	verbAt := verbs[0][2]
	switch raw[verbAt] {
	case 'd':
		cmd.intArg = true
	case 'i':
		cmd.intArg = true
		cmd.format = raw[:verbAt] + "d" + raw[verbAt+1:]
	case 'f', 'F', 'e', 'E', 'g', 'G':
	default:
		return nil, fmt.Errorf("tunablefilter: unsupported format verb in %q", raw)
	}

	return cmd, nil
}

func (c *command) render(wl float64) (string, error) {
	if c.tpl != nil {
		return c.tpl.Execute(pongo2.Context{"wl": wl})
	}

	if c.intArg {
		return fmt.Sprintf(c.format, int(math.Round(wl))), nil
	}

	return fmt.Sprintf(c.format, wl), nil
}
