package ingest

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
)

// Replayer feeds a recorded line-delimited file through the same
// normalization and store-append path as the live ingestor. It runs at full
// speed with no timing fidelity and terminates at end-of-file.
type Replayer struct {
	store Store
	path  string

	// Optional metrics hooks.
	OnTick        func()
	OnDecodeError func()
	OnWriteError  func()
}

// NewReplayer creates a replayer reading NDJSON records from path.
func NewReplayer(path string, store Store) *Replayer {
	return &Replayer{store: store, path: path}
}

// Run replays the file. Malformed lines are skipped; reaching end-of-file is
// normal termination, not an error. Cancellation stops mid-file.
func (r *Replayer) Run(ctx context.Context) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("replay open: %w", err)
	}
	defer f.Close()

	log.Printf("[replay] starting from %s", r.path)

	replayed := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			log.Printf("[replay] cancelled after %d records", replayed)
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ingestRecord(r.store, line, r.OnTick, r.OnDecodeError, r.OnWriteError)
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay read: %w", err)
	}

	log.Printf("[replay] finished: %d records", replayed)
	return nil
}
