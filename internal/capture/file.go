package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/trainlink/pkg/types"
)

const Ext = ".msgpack"

// ErrNotCapture is returned for files that do not follow the capture naming scheme.
var ErrNotCapture = errors.New("not a capture file")

// ParseName parses `<digits>[R].msgpack`. The digits are a millisecond epoch.
func ParseName(path string) (types.CaptureFile, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, Ext) {
		return types.CaptureFile{}, fmt.Errorf("%w: %s", ErrNotCapture, base)
	}
	stem := strings.TrimSuffix(base, Ext)
	dir := types.Request
	if strings.HasSuffix(stem, "R") {
		dir = types.Response
		stem = strings.TrimSuffix(stem, "R")
	}
	if stem == "" {
		return types.CaptureFile{}, fmt.Errorf("%w: %s", ErrNotCapture, base)
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return types.CaptureFile{}, fmt.Errorf("%w: %s", ErrNotCapture, base)
		}
	}
	stamp, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return types.CaptureFile{}, fmt.Errorf("%w: %s: %v", ErrNotCapture, base, err)
	}
	return types.CaptureFile{
		Path:      path,
		Stamp:     stamp,
		Timestamp: time.UnixMilli(stamp),
		Direction: dir,
	}, nil
}

// List returns the capture files in dir, oldest write first. Within the same
// write time the embedded stamp decides, then requests go before responses.
func List(dir string) ([]types.CaptureFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]types.CaptureFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := ParseName(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		f.ModTime = info.ModTime()
		files = append(files, f)
	}
	Sort(files)
	return files, nil
}

// Sort orders files for processing.
func Sort(files []types.CaptureFile) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		if a.Stamp != b.Stamp {
			return a.Stamp < b.Stamp
		}
		return a.Direction < b.Direction
	})
}
