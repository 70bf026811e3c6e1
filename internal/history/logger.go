package history

import (
	"bufio"
	"fmt"
	"os"

	"github.com/saeidbarati157/poet/internal/numeric"
)

const logHeader = "iteration\tperf\tpower\tstate_id\ttimestamp_ns\n"

// logWriter appends batches of history rows to a flat tab-separated
// file. The file is created or truncated when the writer opens.
type logWriter struct {
	f  *os.File
	bw *bufio.Writer
}

func newLogWriter(path string) (*logWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &logWriter{f: f, bw: bufio.NewWriter(f)}
	if _, err := w.bw.WriteString(logHeader); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.bw.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *logWriter) writeBatch(rows []Sample) error {
	for _, r := range rows {
		_, err := fmt.Fprintf(w.bw, "%d\t%s\t%s\t%d\t%d\n",
			r.Iteration,
			numeric.Format(r.Perf),
			numeric.Format(r.Power),
			r.StateID,
			r.At.UnixNano(),
		)
		if err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

func (w *logWriter) close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
