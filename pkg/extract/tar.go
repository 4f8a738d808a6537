package extract

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxEntryBytes caps how much of a single archive entry is read. Exports
// beyond this are rejected rather than silently truncated.
const maxEntryBytes = 4 << 30

// selectTarEntry walks the archive and returns the bytes of the entry the
// selector picks. Auto-selection takes the first JSON entry whose decoded
// root carries conversations; entries that fail to decode are skipped.
func (e *Extractor) selectTarEntry(ctx context.Context, f *os.File, gzipped bool) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive: %w", err)
	}

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: bad gzip stream: %v", ErrUnsupportedFormat, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	jsonIndex := -1
	var candidates []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading archive: %v", ErrUnsupportedFormat, err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(strings.ToLower(hdr.Name), ".json") {
			continue
		}
		jsonIndex++
		candidates = append(candidates, hdr.Name)

		switch {
		case e.Selector.Index >= 0:
			if jsonIndex != e.Selector.Index {
				continue
			}
		case e.Selector.Pattern != "":
			if !strings.Contains(hdr.Name, e.Selector.Pattern) {
				continue
			}
		}

		data, err := readEntry(tr, hdr.Name)
		if err != nil {
			return nil, err
		}

		// Explicit selection trusts the caller; auto-selection probes
		// the root for conversations before committing.
		if e.Selector.Index >= 0 || e.Selector.Pattern != "" || hasConversations(data) {
			return data, nil
		}
	}

	if e.Selector.Index >= 0 {
		return nil, fmt.Errorf("%w: archive has no JSON entry at index %d (found %d)",
			ErrSchemaViolation, e.Selector.Index, len(candidates))
	}
	if e.Selector.Pattern != "" {
		return nil, fmt.Errorf("%w: no archive entry matches %q", ErrSchemaViolation, e.Selector.Pattern)
	}
	return nil, fmt.Errorf("%w: no JSON entry with conversations in archive (JSON entries: %v)",
		ErrSchemaViolation, candidates)
}

func readEntry(tr *tar.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(tr, maxEntryBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading archive entry %s: %w", name, err)
	}
	if len(data) > maxEntryBytes {
		return nil, fmt.Errorf("%w: archive entry %s exceeds size limit", ErrUnsupportedFormat, name)
	}
	return data, nil
}

// hasConversations reports whether the JSON root object carries a
// conversations or messages key, the two export shapes the pipeline
// accepts. A shallow decode avoids parsing the whole document twice for
// entries that will be skipped anyway.
func hasConversations(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if _, ok := probe["conversations"]; ok {
		return true
	}
	_, ok := probe["messages"]
	return ok
}
