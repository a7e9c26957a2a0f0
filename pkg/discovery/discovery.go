// Package discovery locates Claude Code event log files beneath the
// configured project roots. Each project directory holds one or more
// session JSONL files; discovery walks the roots and reports every
// .jsonl file with its owning project.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
)

// EventFile describes one discovered event log file.
type EventFile struct {
	// Path is the absolute path to the JSONL file.
	Path string

	// Project is the name of the directory directly under the scan
	// root that contains the file.
	Project string

	// Size is the file size in bytes at discovery time.
	Size int64

	// ModTime is the file's last modification time at discovery time.
	ModTime time.Time
}

// Scanner discovers event log files under a set of root directories.
type Scanner interface {
	// Scan walks all configured roots and returns the event files
	// found, sorted by path. A missing root is logged and skipped;
	// Scan only fails on I/O errors below an existing root.
	Scan() ([]EventFile, error)

	// Roots returns the configured root directories.
	Roots() []string
}

// scanner implements Scanner.
type scanner struct {
	roots  []string
	logger logger.Logger
}

// New creates a Scanner over the given root directories.
func New(roots []string, log logger.Logger) Scanner {
	return &scanner{roots: roots, logger: log}
}

// Scan implements Scanner.Scan.
func (s *scanner) Scan() ([]EventFile, error) {
	var files []EventFile

	for _, root := range s.roots {
		expanded := expandHome(root)

		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				s.logger.Warn("event log root does not exist, skipping",
					"root", expanded)
				continue
			}
			return nil, fmt.Errorf("failed to stat root %s: %w", expanded, err)
		}

		found, err := s.scanRoot(expanded)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// Roots implements Scanner.Roots.
func (s *scanner) Roots() []string {
	return s.roots
}

func (s *scanner) scanRoot(root string) ([]EventFile, error) {
	var files []EventFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory that vanished mid-walk is not fatal.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		files = append(files, EventFile{
			Path:    path,
			Project: projectName(root, path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk root %s: %w", root, err)
	}

	return files, nil
}

// projectName extracts the top-level directory name under root that
// contains path. Files directly under root report an empty project.
func projectName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
