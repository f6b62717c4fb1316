package proxy

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/kndndrj/splitrandr/internal/xsock"
)

var (
	errUpstreamEmpty = errors.New("no upstream display, pass -upstream or set DISPLAY")
	errSameDisplay   = errors.New("served and upstream displays are the same")
)

// Config holds the daemon settings.
type Config struct {
	Display    string
	Upstream   string
	ConfigPath string
	Verbose    bool
}

// ParseConfig reads the daemon flags.
func ParseConfig(args []string) (*Config, error) {
	flags := flag.NewFlagSet("splitrandr-proxy", flag.ExitOnError)
	displayFlag := flags.String("display", ":8", "Display to serve. Point clients here.")
	upstreamFlag := flags.String("upstream", os.Getenv("DISPLAY"), "Display of the real X server.")
	configFlag := flags.String("config", "", "Split configuration file. Empty means the user config dir.")
	verboseFlag := flags.Bool("verbose", false, "Log details of intercepted traffic.")

	err := flags.Parse(args)
	if err != nil {
		return nil, err
	}

	if *upstreamFlag == "" {
		return nil, errUpstreamEmpty
	}

	served, err := xsock.Parse(*displayFlag)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}

	upstream, err := xsock.Parse(*upstreamFlag)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	if served == upstream {
		return nil, errSameDisplay
	}

	return &Config{
		Display:    *displayFlag,
		Upstream:   *upstreamFlag,
		ConfigPath: *configFlag,
		Verbose:    *verboseFlag,
	}, nil
}

// PidFileName names the pidfile after the served display.
func (c *Config) PidFileName() string {
	n, _ := xsock.Parse(c.Display)
	return fmt.Sprintf("splitrandr_%d", n)
}
