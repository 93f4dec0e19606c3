package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/autopo-forecast/internal/sheet"
	"github.com/rs/zerolog/log"
)

// FileStore is the part of the Drive API the downloader needs
type FileStore interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
}

// DownloadOptions controls how files are pulled from Google Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
	Pattern     string // Glob matched against file names; empty matches all
	LatestOnly  bool   // Keep only the most recently modified match
	ConvertCSV  bool   // Store workbooks as CSV of their pivot sheet
}

// Downloader pulls sales workbooks out of a Drive folder.
type Downloader struct {
	files FileStore
}

// NewDownloader creates a new Downloader.
func NewDownloader(files FileStore) *Downloader {
	return &Downloader{files: files}
}

// Download saves the matching CSV and XLSX files of the folder into
// DownloadDir and returns their local paths. Workbooks are converted to CSV
// when ConvertCSV is set.
func (d *Downloader) Download(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	listed, err := d.files.ListFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}
	matches, err := selectFiles(listed, opts.Pattern, opts.LatestOnly)
	if err != nil {
		return nil, err
	}

	localPaths := make([]string, 0, len(matches))
	for _, f := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		localPath, err := d.fetch(ctx, f, opts.DownloadDir)
		if err != nil {
			return nil, err
		}
		if format, _ := sheet.FormatFromPath(localPath); opts.ConvertCSV && format == sheet.FormatXLSX {
			if localPath, err = convertToCSV(localPath); err != nil {
				return nil, fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
			}
		}
		localPaths = append(localPaths, localPath)
	}

	log.Info().
		Str("folder", opts.FolderID).
		Int("files", len(localPaths)).
		Msg("Downloaded drive files")

	return localPaths, nil
}

// DownloadFile saves one file by id into dir
func (d *Downloader) DownloadFile(ctx context.Context, f *File, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	return d.fetch(ctx, f, dir)
}

func (d *Downloader) fetch(ctx context.Context, f *File, dir string) (string, error) {
	localPath := filepath.Join(dir, filepath.Base(f.Name))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.files.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		_ = os.Remove(localPath)
		return "", fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return localPath, nil
}

// selectFiles keeps spreadsheet files matching pattern, newest first.
func selectFiles(files []*File, pattern string, latestOnly bool) ([]*File, error) {
	var out []*File
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, f.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, f)
	}

	// RFC 3339 timestamps from Drive sort lexically.
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModifiedTime > out[j].ModifiedTime })
	if latestOnly && len(out) > 1 {
		out = out[:1]
	}
	return out, nil
}

// convertToCSV rewrites the pivot sheet (or first sheet) of a workbook as CSV
// next to it and removes the workbook.
func convertToCSV(xlsxPath string) (string, error) {
	t, err := sheet.ReadTable(xlsxPath, sheet.PivotSheet)
	if err != nil {
		return "", err
	}
	csvPath := strings.TrimSuffix(xlsxPath, filepath.Ext(xlsxPath)) + ".csv"
	if err := sheet.SaveTable(csvPath, "", t); err != nil {
		return "", err
	}
	_ = os.Remove(xlsxPath)
	return csvPath, nil
}
