// Package audit provides batched CSV logging of rejected write-class LDAP
// requests (modify, add, delete, modifyDN, compare): every one of them is
// answered with insufficientAccessRights, and this package records who
// asked for what. Shape adapted from the teacher's batched failure logger:
// a buffered channel drained by one goroutine, flushed on a ticker or batch
// size, whichever comes first.
package audit

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// Record describes one rejected write-class request.
type Record struct {
	Timestamp  time.Time
	Operation  string // modify|add|delete|modifyDN|compare
	MessageID  int64
	PeerAddr   string
	DN         string
	ResultCode int
}

// Logger writes Records to a CSV file in batches. The zero value is not
// usable; construct with New.
type Logger struct {
	path   string
	batch  int
	ch     chan Record
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New starts a Logger writing to path. When path is empty, Log and Close
// on the returned nil Logger are no-ops, so the audit trail is fully
// optional.
func New(path string, batch int) *Logger {
	if path == "" {
		return nil
	}

	if batch <= 0 {
		batch = 64
	}

	l := &Logger{path: path, batch: batch, ch: make(chan Record, batch*4), stopCh: make(chan struct{})}
	l.wg.Add(1)
	go l.run()

	return l
}

// Log queues rec for writing. It never blocks: under backpressure the
// record is dropped rather than stalling the connection handler.
func (l *Logger) Log(rec Record) {
	if l == nil {
		return
	}

	select {
	case l.ch <- rec:
	default:
	}
}

// Close flushes pending records and stops the writer goroutine.
func (l *Logger) Close() {
	if l == nil {
		return
	}

	close(l.stopCh)
	l.wg.Wait()
}

func (l *Logger) run() {
	defer l.wg.Done()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		for {
			select {
			case <-l.ch:
			case <-l.stopCh:
				return
			}
		}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "operation", "message_id", "peer_addr", "dn", "result_code"})
	w.Flush()

	buf := make([]Record, 0, l.batch)
	flush := func() {
		if len(buf) == 0 {
			return
		}

		for _, r := range buf {
			_ = w.Write([]string{
				r.Timestamp.Format(time.RFC3339Nano),
				r.Operation,
				strconv.FormatInt(r.MessageID, 10),
				r.PeerAddr,
				r.DN,
				strconv.Itoa(r.ResultCode),
			})
		}

		w.Flush()
		buf = buf[:0]
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			for {
				select {
				case r := <-l.ch:
					buf = append(buf, r)
					if len(buf) >= l.batch {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case r := <-l.ch:
			buf = append(buf, r)
			if len(buf) >= l.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
