package ui

import (
	"fmt"

	"github.com/bamsammich/widepath/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: copy done ✓  files 48,917  folders 1,204  size 2.1 GiB  avg 641 MB/s  time 3m 17s  errors 0
func completionSummary(op string, snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.Bytes) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.Failed > 0 || snap.VerifyFailed > 0 {
		icon = "✗"
	}
	if op == "" {
		op = "done"
	} else {
		op += " done"
	}

	base := fmt.Sprintf("%s %s  files %s  folders %s  size %s  avg %s  time %s",
		op,
		icon,
		FormatCount(snap.Files),
		FormatCount(snap.Folders),
		FormatBytes(snap.Bytes),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.SkippedMountPoints > 0 {
		base += fmt.Sprintf("  mount points skipped %s", FormatCount(snap.SkippedMountPoints))
	}
	if snap.Retries > 0 {
		base += fmt.Sprintf("  retries %s", FormatCount(snap.Retries))
	}
	if snap.Verified > 0 || snap.VerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.Verified))
	}

	base += fmt.Sprintf("  errors %d", snap.Failed+snap.VerifyFailed)

	return base
}
