package coverage

import (
	"context"
	"math/bits"
	"os"
)

// MinTrimBlock is the smallest block size trimming will attempt.
const MinTrimBlock = 1

// Trim attempts to reduce tc's length while preserving ExecCksum. It
// chooses step = max(4, nextpow2(len/16)), then for each block size
// step, step/2, step/4, ... down to MinTrimBlock sweeps removal windows
// left to right, accepting a removal iff the post-removal classified trace
// checksum is unchanged. It stops when a full pass removes nothing, or the
// minimum block size is reached. TrimDone is set regardless of success
// (spec.md §4.5 step 3: "mark done regardless of success"). Returns whether
// any bytes were removed.
func Trim(ctx context.Context, tc *TestCase, exec Executor) (bool, error) {
	tc.Lock()
	defer tc.Unlock()
	defer func() { tc.TrimDone = true }()

	data := tc.Data
	if len(data) < 5 {
		return false, nil
	}

	step := nextPow2(len(data) / 16)
	if step < 4 {
		step = 4
	}

	trimmed := false
	targetCksum := tc.ExecCksum

	for step >= MinTrimBlock {
		progressedThisSize := true
		for progressedThisSize {
			progressedThisSize = false

			for start := 0; start < len(data); {
				end := start + step
				if end > len(data) {
					end = len(data)
				}
				candidate := make([]byte, 0, len(data)-(end-start))
				candidate = append(candidate, data[:start]...)
				candidate = append(candidate, data[end:]...)

				if len(candidate) == 0 {
					start = end
					continue
				}

				res, err := exec.Execute(ctx, candidate)
				if err != nil || res.Crashed || res.TimedOut {
					start = end
					continue
				}

				cksum := ChecksumTrace(Classified(res.Trace))
				if cksum == targetCksum {
					data = candidate
					trimmed = true
					progressedThisSize = true
					// don't advance start: the removed window's
					// successor has shifted into its place
					continue
				}
				start = end
			}
		}
		step /= 2
	}

	if trimmed {
		tc.Data = data
		if tc.Path != "" {
			if err := os.WriteFile(tc.Path, data, 0644); err != nil {
				return trimmed, err
			}
		}
	}
	return trimmed, nil
}

// nextPow2 returns the smallest power of two >= n (0 and 1 map to 1).
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(bits.Len(uint(n-1)))
}
