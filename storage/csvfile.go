package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/AliToori/TradeDeskBot/models"
)

const (
	processedYes = "Yes"
	processedNo  = "No"
)

var csvHeader = []string{"descriptor", "processed"}

// CSVQueue keeps work items in a two-column CSV file. Item ids are 1-based
// data row numbers. A sidecar lock file serialises access between
// processes; mu serialises goroutines in this one.
type CSVQueue struct {
	mu       sync.Mutex
	path     string
	lockPath string
}

// OpenCSVQueue opens the queue file at path, creating it with a header when
// it does not exist.
func OpenCSVQueue(path string) (*CSVQueue, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("create queue directory", err)
		}
	}
	q := &CSVQueue{path: path, lockPath: path + ".lock"}

	err := q.withLock(func() error {
		if _, err := os.Stat(q.path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return q.writeAll(nil)
	})
	if err != nil {
		return nil, storageErr("open queue file", err)
	}
	return q, nil
}

func (q *CSVQueue) Enqueue(ctx context.Context, descriptor string) (models.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return models.WorkItem{}, err
	}

	var item models.WorkItem
	err := q.withLock(func() error {
		records, err := q.readAll()
		if err != nil {
			return err
		}

		f, err := os.OpenFile(q.path, os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := terminateLastLine(f); err != nil {
			return err
		}

		w := csv.NewWriter(f)
		if err := w.Write([]string{descriptor, processedNo}); err != nil {
			return err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return err
		}

		item = models.WorkItem{ID: int64(len(records) + 1), Descriptor: descriptor}
		return nil
	})
	if err != nil {
		return models.WorkItem{}, storageErr("enqueue", err)
	}
	return item, nil
}

func (q *CSVQueue) ClaimNext(ctx context.Context) (*models.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var claimed *models.WorkItem
	err := q.withLock(func() error {
		records, err := q.readAll()
		if err != nil {
			return err
		}
		for i, rec := range records {
			if rec[1] == processedYes {
				continue
			}
			records[i][1] = processedYes
			if err := q.writeAll(records); err != nil {
				return err
			}
			claimed = &models.WorkItem{ID: int64(i + 1), Descriptor: rec[0], Processed: true}
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("claim", err)
	}
	return claimed, nil
}

// Pending counts unprocessed items.
func (q *CSVQueue) Pending(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	items, err := q.items()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Processed {
			n++
		}
	}
	return n, nil
}

// items returns every item in insertion order.
func (q *CSVQueue) items() ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := q.withLock(func() error {
		records, err := q.readAll()
		if err != nil {
			return err
		}
		for i, rec := range records {
			items = append(items, models.WorkItem{
				ID:         int64(i + 1),
				Descriptor: rec[0],
				Processed:  rec[1] == processedYes,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list", err)
	}
	return items, nil
}

func (q *CSVQueue) Close() error {
	return nil
}

func (q *CSVQueue) withLock(fn func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	lf, err := os.OpenFile(q.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lf.Close()

	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock queue file: %w", err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	return fn()
}

// readAll returns the data rows, skipping the header. Rows with a missing
// processed column count as unprocessed.
func (q *CSVQueue) readAll() ([][]string, error) {
	f, err := os.Open(q.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if len(rec) > 0 && isHeader(rec[0]) {
				continue
			}
		}
		if len(rec) == 0 {
			continue
		}
		processed := processedNo
		if len(rec) > 1 && rec[1] == processedYes {
			processed = processedYes
		}
		records = append(records, []string{rec[0], processed})
	}
	return records, nil
}

// terminateLastLine appends a newline when the file does not end with one,
// so an appended record never merges into a hand-edited last line.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// isHeader also accepts the EventURL header of older queue files.
func isHeader(first string) bool {
	return strings.EqualFold(first, csvHeader[0]) || strings.EqualFold(first, "EventURL")
}

// writeAll replaces the file through a temp file and rename.
func (q *CSVQueue) writeAll(records [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(q.path), filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), q.path)
}
