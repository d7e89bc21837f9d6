package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/farm-advisory-backend-go/internal/geocoding"
	"github.com/jengzang/farm-advisory-backend-go/internal/geolocation"
	"github.com/jengzang/farm-advisory-backend-go/internal/models"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

var (
	acquireFile     string
	acquireOrigin   string
	acquireInterval time.Duration
	acquireReverse  bool
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Replay recorded position readings and print the acquired coordinate",
	Long: `Reads a JSON array of readings ({"sample": {...}} or {"code": N}) from
--file (or stdin with "-") and runs the acquisition policy over them.`,
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().StringVarP(&acquireFile, "file", "f", "-", "Readings file, - for stdin")
	acquireCmd.Flags().StringVar(&acquireOrigin, "origin", "http://localhost", "Origin the acquisition runs under")
	acquireCmd.Flags().DurationVar(&acquireInterval, "interval", 0, "Delay between replayed readings")
	acquireCmd.Flags().BoolVar(&acquireReverse, "reverse", false, "Also look up the place name")
}

type acquireOutput struct {
	Coordinate models.Coordinate `json:"coordinate"`
	Place      *models.PlaceName `json:"place,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func runAcquire(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if acquireFile != "-" {
		f, err := os.Open(acquireFile)
		if err != nil {
			return fmt.Errorf("failed to open readings: %w", err)
		}
		defer f.Close()
		in = f
	}

	var readings []geolocation.Reading
	if err := json.NewDecoder(in).Decode(&readings); err != nil {
		return fmt.Errorf("failed to parse readings: %w", err)
	}

	origin, err := geolocation.ParseOrigin(acquireOrigin)
	if err != nil {
		return err
	}
	var watcher geolocation.Watcher
	if len(readings) > 0 {
		watcher = &geolocation.ReplayWatcher{Readings: readings, Interval: acquireInterval}
	}

	coord, err := geolocation.NewAcquirer(watcher, origin, cfg.Acquisition, logger).Acquire(cmd.Context())
	if err != nil {
		return err
	}
	out := acquireOutput{Coordinate: coord}

	if acquireReverse {
		httpClient := upstream.NewClient(cfg.Upstream.HTTPTimeout, cfg.Upstream.UserAgent, logger)
		place, err := geocoding.NewClient(cfg.Upstream.NominatimURL, cfg.Upstream.SearchLimit, httpClient, logger).
			ReverseLookup(cmd.Context(), coord)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Place = &place
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
