// Copyright 2019 Nick White.
// Use of this source code is governed by the GPLv3
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DownloadSegmentResults downloads every *.segments.json file, the
// cropped *_segNN.png images for each, and any report.pdf / graph.png
// present for a batch.
func DownloadSegmentResults(dir string, name string, conn DownloadLister) error {
	objs, err := conn.ListObjects(conn.WIPStorageId(), name)
	if err != nil {
		return fmt.Errorf("failed to get list of files for batch %s: %w", name, err)
	}
	for _, key := range objs {
		base := filepath.Base(key)
		if !strings.HasSuffix(base, ".segments.json") &&
			!strings.Contains(base, "_seg") &&
			base != name+".report.pdf" &&
			base != "graph.png" {
			continue
		}
		fn := filepath.Join(dir, base)
		conn.Log("Downloading", key)
		err = conn.Download(conn.WIPStorageId(), key, fn)
		if err != nil {
			return fmt.Errorf("failed to download file %s: %w", key, err)
		}
	}
	return nil
}

// DownloadReport downloads the report.pdf and graph.png for a batch,
// ignoring a missing graph.png (which will not exist for a batch of
// fewer than two cards).
func DownloadReport(dir string, name string, conn Downloader) error {
	key := filepath.Join(name, name+".report.pdf")
	fn := filepath.Join(dir, name+".report.pdf")
	if err := conn.Download(conn.WIPStorageId(), key, fn); err != nil {
		return fmt.Errorf("failed to download report pdf %s: %w", key, err)
	}

	key = filepath.Join(name, "graph.png")
	fn = filepath.Join(dir, "graph.png")
	if err := conn.Download(conn.WIPStorageId(), key, fn); err != nil {
		conn.Log("No graph.png available for", name, "(expected for single-card batches):", err)
	}
	return nil
}

// DownloadAll downloads every object uploaded for a batch.
func DownloadAll(dir string, name string, conn DownloadLister) error {
	objs, err := conn.ListObjects(conn.WIPStorageId(), name)
	if err != nil {
		return fmt.Errorf("failed to get list of files for batch %s: %w", name, err)
	}
	for _, i := range objs {
		base := filepath.Base(i)
		fn := filepath.Join(dir, base)
		conn.Log("Downloading", i)
		err = conn.Download(conn.WIPStorageId(), i, fn)
		if err != nil {
			return fmt.Errorf("failed to download file %s: %w", i, err)
		}
	}
	return nil
}
