// Package pose reads device pose streams for framepipe stages.
//
// The on-disk format is a plain text stream of floating point values,
// separated by any mix of whitespace and commas, eight values per record:
//
//	qw qx qy qz tx ty tz timestamp
//
// The first four values are the orientation quaternion, the next three the
// translation vector, and the last the capture time in seconds. Timestamps
// are converted to microseconds on load and must be non-decreasing.
package pose

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/gogpu/framepipe"
)

// fieldsPerRecord is the number of values in one pose record: four for the
// orientation quaternion, three for the translation, one for the
// timestamp.
const fieldsPerRecord = 8

// Read parses a pose stream from r. A trailing partial record is ignored;
// a malformed value or a timestamp running backwards is an error.
func Read(r io.Reader) ([]*framepipe.DevicePose, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pose: %w", err)
	}

	fields := strings.FieldsFunc(string(raw), func(c rune) bool {
		return c == ',' || unicode.IsSpace(c)
	})

	n := len(fields) / fieldsPerRecord
	if rem := len(fields) % fieldsPerRecord; rem != 0 {
		framepipe.Logger().Debug("ignoring trailing partial pose record", "fields", rem)
	}

	poses := make([]*framepipe.DevicePose, 0, n)
	var lastTS int64
	for i := 0; i < n; i++ {
		rec := fields[i*fieldsPerRecord : (i+1)*fieldsPerRecord]
		vals := make([]float64, fieldsPerRecord)
		for j, f := range rec {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: pose: record %d field %d: %w",
					framepipe.ErrInvalidParam, i, j, err)
			}
			vals[j] = v
		}

		// Timestamps arrive in seconds; the pipeline works in microseconds.
		ts := int64(vals[7] * 1e6)
		if i > 0 && ts < lastTS {
			return nil, fmt.Errorf("%w: pose: record %d: timestamp %d before %d",
				framepipe.ErrInvalidParam, i, ts, lastTS)
		}
		lastTS = ts

		poses = append(poses, &framepipe.DevicePose{
			Orientation: [4]float64{vals[0], vals[1], vals[2], vals[3]},
			Translation: [3]float64{vals[4], vals[5], vals[6]},
			Timestamp:   ts,
		})
	}
	return poses, nil
}

// ReadFile parses the pose stream stored at path.
func ReadFile(path string) ([]*framepipe.DevicePose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pose: %w", err)
	}
	defer f.Close()
	return Read(f)
}
