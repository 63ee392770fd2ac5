package simple

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ozontech/bulkrpc/report"
)

var now = time.Now

// Reporter печатает итог после Close: количество вызовов по кодам
// результата, частоту и задержки.
type Reporter struct {
	w       io.Writer
	closeCh chan struct{}
	start   time.Time

	mu        sync.Mutex
	codes     map[report.Code]uint64
	total     uint64
	latency   time.Duration
	latencies []time.Duration
}

func New(w io.Writer) *Reporter {
	return &Reporter{
		w:       w,
		closeCh: make(chan struct{}),
		start:   now(),
		codes:   make(map[report.Code]uint64),
	}
}

func (r *Reporter) Run() error {
	<-r.closeCh
	return r.summary(now().Sub(r.start))
}

func (r *Reporter) Close() error {
	close(r.closeCh)
	return nil
}

func (r *Reporter) Acquire(string) report.CallState {
	return &callState{r: r, start: now()}
}

func (r *Reporter) accept(code report.Code, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[code]++
	r.total++
	r.latency += d
	r.latencies = append(r.latencies, d)
}

func (r *Reporter) summary(elapsed time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(r.total) / elapsed.Seconds()
	}
	_, err := fmt.Fprintf(r.w, "%s calls in %s, %s calls per second\n",
		humanize.Comma(int64(r.total)), elapsed.Round(time.Millisecond),
		humanize.CommafWithDigits(rate, 2),
	)
	if err != nil {
		return err
	}
	if r.total == 0 {
		return nil
	}

	codes := make([]string, 0, len(r.codes))
	for c := range r.codes {
		codes = append(codes, string(c))
	}
	sort.Strings(codes)
	for _, c := range codes {
		if _, err := fmt.Fprintf(r.w, "  %s=%s\n", c, humanize.Comma(int64(r.codes[report.Code(c)]))); err != nil {
			return err
		}
	}

	sort.Slice(r.latencies, func(i, j int) bool { return r.latencies[i] < r.latencies[j] })
	_, err = fmt.Fprintf(r.w, "  latency avg=%s p50=%s p99=%s max=%s\n",
		r.latency/time.Duration(r.total),
		quantile(r.latencies, 0.5), quantile(r.latencies, 0.99),
		r.latencies[len(r.latencies)-1],
	)
	return err
}

// quantile sorted должен быть отсортирован и не пуст.
func quantile(sorted []time.Duration, q float64) time.Duration {
	return sorted[int(q*float64(len(sorted)-1))]
}

type callState struct {
	r     *Reporter
	start time.Time
	err   error
}

func (s *callState) Error(err error) { s.err = err }

func (s *callState) End() {
	s.r.accept(report.Classify(s.err), now().Sub(s.start))
}
