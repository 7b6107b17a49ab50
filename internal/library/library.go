// Package library discovers photos on disk and prepares them for analysis.
package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"photo-curator/internal/ai"
	"photo-curator/internal/cache"
	"photo-curator/internal/orchestrator"
)

// maxImageEdge is the longest side images are resized to before upload.
// Providers charge by resolution and gain nothing from full-size photos.
const maxImageEdge = 1024

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// Photo is a discovered photo file. TakenAt falls back to the file
// modification time since payloads are re-encoded and EXIF is not parsed.
type Photo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	TakenAt time.Time
}

// Key returns the photo's cache identity key.
func (p Photo) Key() string {
	return cache.Key(p.Path, p.ModTime, p.Size)
}

// Discover walks root recursively and returns all supported photos sorted by
// path. Hidden directories are skipped; unsupported extensions are counted
// and returned so the caller can report them.
func Discover(root string) ([]Photo, int, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to access source folder: %w", err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("source %q is not a directory", root)
	}

	var photos []Photo
	skipped := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// The root itself may be hidden; only skip hidden subdirectories.
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			skipped++
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		photos = append(photos, Photo{
			Path:    path,
			Name:    d.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			TakenAt: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan source folder: %w", err)
	}

	sort.Slice(photos, func(i, j int) bool { return photos[i].Path < photos[j].Path })
	return photos, skipped, nil
}

// LoadUnits reads and resizes photos into request units for the
// orchestrator. Photos that cannot be read or decoded are logged and left
// out rather than failing the whole run.
func LoadUnits(photos []Photo, log zerolog.Logger) []*orchestrator.RequestUnit {
	units := make([]*orchestrator.RequestUnit, 0, len(photos))
	for _, p := range photos {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			log.Warn().Err(err).Str("photo", p.Name).Msg("failed to read photo, skipping")
			continue
		}
		payload, err := ai.ResizeImage(data, maxImageEdge)
		if err != nil {
			log.Warn().Err(err).Str("photo", p.Name).Msg("failed to decode photo, skipping")
			continue
		}
		units = append(units, &orchestrator.RequestUnit{
			Key:     p.Key(),
			Path:    p.Path,
			Name:    p.Name,
			Payload: payload,
			TakenAt: p.TakenAt,
		})
	}
	return units
}
