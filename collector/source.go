package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Reading is one pair of temperatures in degrees Celsius.
type Reading struct {
	CPUTemp     float64
	BatteryTemp float64
}

// Source produces one reading per call. An error means the sensor read failed and
// the tick should be skipped.
type Source interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
}

const (
	SourceRandom = "random"
	SourceIStats = "istats"
)

// NewSource picks a reading source by name.
func NewSource(name string) (Source, error) {
	switch name {
	case "", SourceRandom:
		return NewRandomSource(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x7e4d))), nil
	case SourceIStats:
		return NewIStatsSource(), nil
	default:
		return nil, fmt.Errorf("unknown sensor source %q", name)
	}
}

// Bounds of the synthetic readings.
const (
	RandomCPUMin     = 40.0
	RandomCPUMax     = 80.0
	RandomBatteryMin = 38.0
	RandomBatteryMax = 70.0
)

// RandomSource stands in for real hardware: uniform values in fixed ranges,
// rounded to one decimal.
type RandomSource struct {
	rng *rand.Rand
}

func NewRandomSource(rng *rand.Rand) *RandomSource {
	return &RandomSource{rng: rng}
}

func (s *RandomSource) Name() string { return SourceRandom }

func (s *RandomSource) Read(context.Context) (Reading, error) {
	return Reading{
		CPUTemp:     s.uniform(RandomCPUMin, RandomCPUMax),
		BatteryTemp: s.uniform(RandomBatteryMin, RandomBatteryMax),
	}, nil
}

func (s *RandomSource) uniform(lo, hi float64) float64 {
	return math.Round((lo+s.rng.Float64()*(hi-lo))*10) / 10
}

var (
	errCPULineMissing     = errors.New("istats output has no CPU temp line")
	errBatteryLineMissing = errors.New("istats output has no Battery temp line")
)

// IStatsSource runs the istats CLI (macOS) and reads the CPU and battery
// temperature lines out of its report.
type IStatsSource struct {
	run func(ctx context.Context) ([]byte, error)
}

func NewIStatsSource() *IStatsSource {
	return &IStatsSource{run: func(ctx context.Context) ([]byte, error) {
		return exec.CommandContext(ctx, "istats").Output()
	}}
}

func (s *IStatsSource) Name() string { return SourceIStats }

func (s *IStatsSource) Read(ctx context.Context) (Reading, error) {
	out, err := s.run(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("run istats: %w", err)
	}
	return parseIStats(string(out))
}

// parseIStats extracts the value after "CPU temp:" and "Battery temp:", e.g.
//
//	CPU temp:               56.38°C     ▁▂▃▅▆▇
//	Battery temp:           30.5°C
func parseIStats(output string) (Reading, error) {
	var r Reading
	var haveCPU, haveBattery bool

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "CPU temp:"):
			v, err := parseTempValue(line)
			if err != nil {
				return Reading{}, fmt.Errorf("cpu temp: %w", err)
			}
			r.CPUTemp, haveCPU = v, true
		case strings.Contains(line, "Battery temp:"):
			v, err := parseTempValue(line)
			if err != nil {
				return Reading{}, fmt.Errorf("battery temp: %w", err)
			}
			r.BatteryTemp, haveBattery = v, true
		}
	}
	if err := scanner.Err(); err != nil {
		return Reading{}, err
	}

	if !haveCPU {
		return Reading{}, errCPULineMissing
	}
	if !haveBattery {
		return Reading{}, errBatteryLineMissing
	}
	return r, nil
}

func parseTempValue(line string) (float64, error) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return 0, fmt.Errorf("malformed line %q", line)
	}
	value, _, _ := strings.Cut(strings.TrimSpace(rest), "°")
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}
