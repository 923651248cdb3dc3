package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	Prefix       string
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	ByExtension  map[string]int64
}

// Stats walks every object below prefix.
func Stats(ctx context.Context, s Store, prefix string) (*BucketStats, []ObjectInfo, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}

	stats := &BucketStats{Prefix: prefix, ByExtension: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		stats.ByExtension[extension(obj.Key)]++
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, objects, nil
}

// PrintReport writes a human readable listing of prefix to w.
// With summaryOnly set, only totals and per-extension counts are printed.
func PrintReport(ctx context.Context, w io.Writer, s Store, prefix string, summaryOnly bool) error {
	stats, objects, err := Stats(ctx, s, prefix)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "prefix:        %q\n", prefix)
	fmt.Fprintf(w, "objects:       %d\n", stats.TotalObjects)
	fmt.Fprintf(w, "total size:    %s\n", FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "last modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}

	exts := make([]string, 0, len(stats.ByExtension))
	for ext := range stats.ByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		fmt.Fprintf(w, "  %-8s %d\n", ext, stats.ByExtension[ext])
	}

	if summaryOnly {
		return nil
	}
	fmt.Fprintln(w)
	for _, obj := range objects {
		fmt.Fprintf(w, "%-70s %10s  %s\n", obj.Key, FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// DeletePrefix removes every object below prefix and returns how many were deleted.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete with an empty prefix")
	}
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, obj := range objects {
		if err := s.Delete(ctx, obj.Key); err != nil {
			return n, fmt.Errorf("delete %s: %w", obj.Key, err)
		}
		n++
	}
	return n, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func extension(key string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if ext == "" {
		return "none"
	}
	return ext
}
