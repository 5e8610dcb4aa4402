package coverage

import (
	"context"
	"errors"
	"time"
)

// Calibration tunables (spec.md §9: compile-time tunables, exported
// constants, not exposed on the CLI).
const (
	CalCycles     = 8  // default calibration runs
	CalCyclesLong = 40 // extended runs once variable behaviour is suspected
	CalChances    = 4  // calibration attempts before an entry is given up on
)

// ErrCalibrationBroken is returned once an entry has exhausted CalChances
// calibration attempts; the caller should skip the entry forever.
var ErrCalibrationBroken = errors.New("coverage: calibration exhausted, entry is broken")

// Calibrate runs tc CalCycles times (CalCyclesLong if behaviour looks
// variable), collecting classified-trace checksums. If every run agrees, it
// records ExecCksum and BitmapSize from that single trace. If runs
// disagree, VarBehavior is set, the run count is extended to CalCyclesLong,
// and all classified traces are OR'd together so BitmapSize reflects their
// union. ExecUs is set to the median run time. A crash on any run
// increments CalFailed; once CalFailed reaches CalChances,
// ErrCalibrationBroken is returned and the caller must stop retrying.
func Calibrate(ctx context.Context, tc *TestCase, exec Executor) ([]byte, error) {
	tc.Lock()
	defer tc.Unlock()

	runs := CalCycles
	var traces [][]byte
	var durations []time.Duration
	var varBytes []byte

	for i := 0; i < runs; i++ {
		res, err := exec.Execute(ctx, tc.Data)
		if err != nil {
			tc.CalFailed++
			if tc.CalFailed >= CalChances {
				return nil, ErrCalibrationBroken
			}
			return nil, err
		}
		if res.Crashed {
			tc.CalFailed++
			if tc.CalFailed >= CalChances {
				return nil, ErrCalibrationBroken
			}
			continue
		}

		trace := Classified(res.Trace)
		traces = append(traces, trace)
		durations = append(durations, res.Duration)

		if i == runs-1 && runs == CalCycles && !tracesAgree(traces) {
			runs = CalCyclesLong
			tc.VarBehavior = true
		}
	}

	if len(traces) == 0 {
		tc.CalFailed++
		if tc.CalFailed >= CalChances {
			return nil, ErrCalibrationBroken
		}
		return nil, errors.New("coverage: calibration produced no successful runs")
	}

	if tc.VarBehavior {
		varBytes = make([]byte, len(traces[0]))
		for _, t := range traces {
			for i, b := range t {
				varBytes[i] |= b
			}
		}
		tc.BitmapSize = PopcountBytes(varBytes)
		tc.ExecCksum = ChecksumTrace(traces[len(traces)-1])
	} else {
		tc.BitmapSize = PopcountBytes(traces[0])
		tc.ExecCksum = ChecksumTrace(traces[0])
		varBytes = traces[0]
	}

	tc.ExecUs = medianMicros(durations)
	return varBytes, nil
}

func tracesAgree(traces [][]byte) bool {
	if len(traces) < 2 {
		return true
	}
	ref := ChecksumTrace(traces[0])
	for _, t := range traces[1:] {
		if ChecksumTrace(t) != ref {
			return false
		}
	}
	return true
}

func medianMicros(durations []time.Duration) int64 {
	if len(durations) == 0 {
		return 0
	}
	us := make([]int64, len(durations))
	for i, d := range durations {
		us[i] = d.Microseconds()
	}
	// simple insertion sort: calibration batches are small (<=40 entries)
	for i := 1; i < len(us); i++ {
		v := us[i]
		j := i - 1
		for j >= 0 && us[j] > v {
			us[j+1] = us[j]
			j--
		}
		us[j+1] = v
	}
	return us[len(us)/2]
}
