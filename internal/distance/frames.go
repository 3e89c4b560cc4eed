package distance

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FrameSource yields camera frames as data URLs.
type FrameSource interface {
	Next(ctx context.Context) (string, error)
}

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// DirFrames replays the images of a directory in name order, looping.
type DirFrames struct {
	mu    sync.Mutex
	paths []string
	next  int
}

// NewDirFrames lists the jpeg and png files in dir.
func NewDirFrames(dir string) (*DirFrames, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("distance: read frames dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageTypes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("distance: no jpeg or png frames in " + dir)
	}
	sort.Strings(paths)
	return &DirFrames{paths: paths}, nil
}

// Next returns the next frame.
func (f *DirFrames) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	path := f.paths[f.next]
	f.next = (f.next + 1) % len(f.paths)
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("distance: read frame: %w", err)
	}
	mime := imageTypes[strings.ToLower(filepath.Ext(path))]
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
