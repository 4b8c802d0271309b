// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// changedPathsFromDiff extracts the changed file paths from a unified
// diff payload. A malformed diff yields no paths; the analyzer falls back
// to the paths listed on the change record.
func changedPathsFromDiff(patch string) []string {
	if patch == "" {
		return nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{}, len(fileDiffs))
	for _, fd := range fileDiffs {
		name := fd.NewName
		if name == "" || name == "/dev/null" {
			name = fd.OrigName
		}
		name = strings.TrimPrefix(name, "a/")
		name = strings.TrimPrefix(name, "b/")
		if name != "" && name != "/dev/null" {
			seen[name] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// mergePaths unions the explicit changed-path list with paths recovered
// from the diff payload, preserving a deterministic order.
func mergePaths(explicit, fromDiff []string) []string {
	seen := make(map[string]struct{}, len(explicit)+len(fromDiff))
	merged := make([]string, 0, len(explicit)+len(fromDiff))
	for _, p := range explicit {
		if _, ok := seen[p]; !ok && p != "" {
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	for _, p := range fromDiff {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}
