package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Column names accepted by ReadCSV, compared case-insensitively.
var (
	treeIDColumns = []string{"treeid", "tree_id", "tree"}
	heightColumns = []string{"height", "z"}
	ladColumns    = []string{"lad"}
)

// ReadCSV parses a long-format LAD table with one row per (tree, height)
// bin. Rows may arrive in any order; profiles are returned in the order
// their tree first appears, each sorted by height. Only structural
// problems (header, unreadable rows, unparsable cells) are errors;
// per-tree constraints are left to Validate so one bad tree does not
// lose the rest of the table.
func ReadCSV(r io.Reader) ([]Profile, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty profile table: %w", ErrMalformed)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	treeCol, err := findColumn(header, treeIDColumns)
	if err != nil {
		return nil, err
	}
	heightCol, err := findColumn(header, heightColumns)
	if err != nil {
		return nil, err
	}
	ladCol, err := findColumn(header, ladColumns)
	if err != nil {
		return nil, err
	}

	byTree := make(map[string]*Profile)
	var order []string
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		id := strings.TrimSpace(rec[treeCol])
		h, err := strconv.ParseFloat(strings.TrimSpace(rec[heightCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid height '%s': %w", line, rec[heightCol], err)
		}
		lad, err := parseLAD(rec[ladCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid lad '%s': %w", line, rec[ladCol], err)
		}
		p, ok := byTree[id]
		if !ok {
			p = &Profile{TreeID: id}
			byTree[id] = p
			order = append(order, id)
		}
		p.Samples = append(p.Samples, Sample{Height: h, LAD: lad})
	}

	out := make([]Profile, 0, len(order))
	for _, id := range order {
		p := byTree[id]
		sort.SliceStable(p.Samples, func(i, j int) bool { return p.Samples[i].Height < p.Samples[j].Height })
		out = append(out, *p)
	}
	return out, nil
}

// parseLAD treats empty and NA cells as zero density.
func parseLAD(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "na") || strings.EqualFold(s, "nan") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func findColumn(header []string, names []string) (int, error) {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("missing column %q in header %v: %w", names[0], header, ErrMalformed)
}
