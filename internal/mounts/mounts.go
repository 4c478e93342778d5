// Package mounts wraps the platform collaborators the indexing core depends
// on: live volume enumeration, filesystem-type detection, and the open-with-
// default-handler action.
package mounts

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Volume describes one live mounted filesystem of a recognized kind.
type Volume struct {
	Device         string `json:"device"`
	Path           string `json:"path"`
	FilesystemType string `json:"filesystemType"`
}

// DetectTimeout bounds the filesystem-type probe so one unresponsive mount
// cannot stall a whole indexing run.
const DetectTimeout = 5 * time.Second

var recognizedFilesystems = map[string]struct{}{
	"ext4":    {},
	"ext3":    {},
	"ext2":    {},
	"xfs":     {},
	"btrfs":   {},
	"ntfs":    {},
	"fuseblk": {},
	"ntfs-3g": {},
	"vfat":    {},
	"exfat":   {},
}

var excludedMountPoints = map[string]struct{}{
	"/proc": {},
	"/sys":  {},
	"/dev":  {},
	"/run":  {},
}

// ListVolumes enumerates mounted volumes of recognized kinds from the live
// mount table.
func ListVolumes() ([]Volume, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	defer f.Close()

	return parseMountTable(f)
}

func parseMountTable(r io.Reader) ([]Volume, error) {
	var volumes []Volume

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		device, mountPoint, fsType := fields[0], fields[1], fields[2]

		if _, ok := recognizedFilesystems[fsType]; !ok {
			continue
		}
		if _, ok := excludedMountPoints[mountPoint]; ok {
			continue
		}

		volumes = append(volumes, Volume{
			Device:         device,
			Path:           mountPoint,
			FilesystemType: fsType,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mount table: %w", err)
	}
	return volumes, nil
}

// DetectFilesystem probes the filesystem type of path. Any failure, including
// the probe timing out, degrades to "unknown" rather than an error so callers
// never abort on a flaky mount.
func DetectFilesystem(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "df", "-T", path).Output()
	if err != nil {
		return "unknown"
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return "unknown"
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 2 {
		return "unknown"
	}
	return fields[1]
}

// Open launches the platform default handler for path.
func Open(path string) error {
	if err := exec.Command("xdg-open", path).Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}
