package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"rdfconv/internal/config"
	"rdfconv/internal/graph"
	"rdfconv/internal/metrics"
	"rdfconv/internal/turtle"
)

const mb = 1 << 20

// chunkWriter accumulates merged row graphs and flushes them to numbered
// chunk files when the estimated in-memory size crosses the configured
// threshold. It runs exclusively on the coordinator; no locking.
type chunkWriter struct {
	res  *config.Resolved
	stem string
	ext  string

	acc    *graph.Set
	rows   int // merged rows since the last size check
	chunks []string

	maxBytes  int64 // 0 disables chunking
	checkEach int

	statements int64
}

func newChunkWriter(res *config.Resolved) *chunkWriter {
	base := filepath.Base(res.Infile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	ext := ".ttl"
	if _, quads := res.GraphIRI(); quads {
		ext = ".trig"
	}

	return &chunkWriter{
		res:       res,
		stem:      stem,
		ext:       ext,
		acc:       graph.NewSet(),
		maxBytes:  int64(res.Spec.MaxGraphSizeMb) * mb,
		checkEach: res.Spec.SizeCheckFrequency,
	}
}

// absorb merges one row's statements and runs the periodic size check.
func (w *chunkWriter) absorb(set *graph.Set) error {
	w.acc.Union(set)
	w.rows++

	if w.maxBytes == 0 || w.rows < w.checkEach {
		return nil
	}
	w.rows = 0
	if w.acc.EstimatedBytes() < w.maxBytes {
		return nil
	}
	return w.flush()
}

// flush serializes the accumulator to the next numbered chunk and resets it.
func (w *chunkWriter) flush() error {
	if w.acc.Len() == 0 {
		return nil
	}
	name := fmt.Sprintf("%s-%d%s", w.stem, len(w.chunks)+1, w.ext)
	if err := w.write(name); err != nil {
		return err
	}
	w.acc.Reset()
	return nil
}

// finish serializes whatever remains. With chunking disabled the whole run
// lands in a single unnumbered file; with chunking enabled the remainder
// becomes the final numbered chunk.
func (w *chunkWriter) finish() error {
	if w.maxBytes == 0 {
		return w.write(w.stem + w.ext)
	}
	if w.acc.Len() == 0 && len(w.chunks) > 0 {
		return nil
	}
	return w.flush()
}

func (w *chunkWriter) write(name string) error {
	path := filepath.Join(w.res.Outdir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", name, err)
	}

	var werr error
	if g, quads := w.res.GraphIRI(); quads {
		werr = turtle.WriteTriG(f, w.acc, g, w.res.Prefixes)
	} else {
		werr = turtle.WriteTurtle(f, w.acc, w.res.Prefixes)
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("chunk %s: %w", name, werr)
	}

	w.statements += int64(w.acc.Len())
	w.chunks = append(w.chunks, path)
	metrics.RecordChunks(w.stem, 1)
	metrics.RecordStatements(w.stem, int64(w.acc.Len()))
	log.Printf("writer: wrote %s (%d statements, ~%.1f MB estimated)",
		name, w.acc.Len(), float64(w.acc.EstimatedBytes())/mb)
	return nil
}
