package grid

import (
	"math/bits"
	"slices"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
)

const bloomFPR = 0.001

// File is a parsed dump together with its source name.
type File struct {
	Name string
	Rows []Row
}

// Duplicate is a (signature, seq) slot defined by more than one file.
type Duplicate struct {
	Key   string
	Files []string
}

// CrossFileDuplicates reports the slots defined in two or more of at most 64
// files. Each file gets a bloom filter; rows that hit another file's filter
// become candidates, which are then confirmed against the exact key sets.
func CrossFileDuplicates(files []File) []Duplicate {
	if len(files) < 2 {
		return nil
	}

	filters := make([]*bloom.BloomFilter, len(files))
	for i, f := range files {
		filters[i] = bloom.NewWithEstimates(uint(len(f.Rows))+1, bloomFPR)
		for _, r := range f.Rows {
			filters[i].AddString(r.Key())
		}
	}

	candidates := make(map[string]struct{})
	for i, f := range files {
		for _, r := range f.Rows {
			for j, filter := range filters {
				if j != i && filter.TestString(r.Key()) {
					candidates[r.Key()] = struct{}{}
					break
				}
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	masks := make(map[string]uint, len(candidates))
	for i, f := range files {
		for _, r := range f.Rows {
			if _, ok := candidates[r.Key()]; ok {
				masks[r.Key()] |= 1 << uint(i)
			}
		}
	}

	var out []Duplicate
	for key, mask := range masks {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		d := Duplicate{Key: key}
		for i, f := range files {
			if mask&(1<<uint(i)) != 0 {
				d.Files = append(d.Files, f.Name)
			}
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Duplicate) int { return strings.Compare(a.Key, b.Key) })
	return out
}
