package pose

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/framepipe"
)

func TestReadCommaSeparated(t *testing.T) {
	in := "1,0,0,0,0.1,0.2,0.3,1.0\n0.99,0.01,0,0,0.2,0.3,0.4,1.033333\n"
	poses, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(poses) != 2 {
		t.Fatalf("got %d records, want 2", len(poses))
	}

	p := poses[0]
	if p.Orientation != [4]float64{1, 0, 0, 0} {
		t.Errorf("Orientation = %v, want identity quaternion", p.Orientation)
	}
	if p.Translation != [3]float64{0.1, 0.2, 0.3} {
		t.Errorf("Translation = %v, want [0.1 0.2 0.3]", p.Translation)
	}
	if p.Timestamp != 1000000 {
		t.Errorf("Timestamp = %d, want 1000000 (1.0s in microseconds)", p.Timestamp)
	}
	if poses[1].Timestamp != 1033333 {
		t.Errorf("second Timestamp = %d, want 1033333", poses[1].Timestamp)
	}
}

func TestReadWhitespaceSeparated(t *testing.T) {
	in := "1 0 0 0\t0 0 0  2.5\n"
	poses, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(poses) != 1 || poses[0].Timestamp != 2500000 {
		t.Fatalf("poses = %v, want one record at 2500000", poses)
	}
}

func TestReadTrailingPartialRecordIgnored(t *testing.T) {
	in := "1,0,0,0,0,0,0,1.0\n0.9,0.1,0\n"
	poses, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(poses) != 1 {
		t.Errorf("got %d records, want 1 (partial tail dropped)", len(poses))
	}
}

func TestReadEmpty(t *testing.T) {
	poses, err := Read(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(poses) != 0 {
		t.Errorf("got %d records, want 0", len(poses))
	}
}

func TestReadMalformedValue(t *testing.T) {
	in := "1,0,0,bogus,0,0,0,1.0\n"
	_, err := Read(strings.NewReader(in))
	if !errors.Is(err, framepipe.ErrInvalidParam) {
		t.Errorf("Read error = %v, want ErrInvalidParam", err)
	}
}

func TestReadTimestampRunsBackwards(t *testing.T) {
	in := "1,0,0,0,0,0,0,2.0\n1,0,0,0,0,0,0,1.0\n"
	_, err := Read(strings.NewReader(in))
	if !errors.Is(err, framepipe.ErrInvalidParam) {
		t.Errorf("Read error = %v, want ErrInvalidParam", err)
	}
}

func TestReadEqualTimestampsAllowed(t *testing.T) {
	in := "1,0,0,0,0,0,0,1.0\n1,0,0,0,0,0,0,1.0\n"
	poses, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(poses) != 2 {
		t.Errorf("got %d records, want 2", len(poses))
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gyro.csv")
	if err := os.WriteFile(path, []byte("1,0,0,0,0,0,0,0.5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	poses, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(poses) != 1 || poses[0].Timestamp != 500000 {
		t.Fatalf("poses = %v, want one record at 500000", poses)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("ReadFile on a missing file = nil, want error")
	}
}
