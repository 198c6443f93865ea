// Package staticentries loads an optional CSV overlay of directory entries.
// The cache prepends them to the upstream entries on every successful
// refresh and keeps them with the rest of the list when a later refresh
// fails; before the first successful refresh none are served. Header:
// cn,telephone_number. Repurposed from the teacher's CSV credential loader
// (same header-index-resolution approach), now projecting rows into
// model.Entry instead of benchmark credentials.
package staticentries

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aredn/aredn-ldap-bridge/internal/model"
)

// Load reads a CSV file at path and projects each row into a directory
// entry under baseDN via model.StaticEntry. An empty path returns a nil,
// empty slice with no error: the static overlay is optional.
func Load(path, baseDN string) ([]model.Entry, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idxCN, idxTel := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "cn":
			idxCN = i
		case "telephone_number":
			idxTel = i
		}
	}

	if idxCN < 0 || idxTel < 0 {
		return nil, fmt.Errorf("csv must have cn,telephone_number headers")
	}

	var entries []model.Entry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if idxCN >= len(rec) || idxTel >= len(rec) {
			continue
		}

		cn := strings.TrimSpace(rec[idxCN])
		tel := strings.TrimRight(rec[idxTel], "\r\n")
		if cn == "" {
			continue
		}

		entries = append(entries, model.StaticEntry(cn, tel, baseDN))
	}

	return entries, nil
}
