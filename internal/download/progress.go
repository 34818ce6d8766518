package download

import (
	"time"

	"github.com/dustin/go-humanize"
)

// progressInterval is how often progress is sampled.
const progressInterval = 100 * time.Millisecond

// Progress tracks download progress
type Progress struct {
	TotalBytes      int64
	DownloadedBytes int64
	TotalItems      int
	CompletedItems  int
	CurrentItem     string
	Speed           float64 // bytes per second
}

// Fraction returns completion in [0, 1], by bytes when sizes are known and
// by items otherwise.
func (p Progress) Fraction() float64 {
	var f float64
	switch {
	case p.TotalBytes > 0:
		f = float64(p.DownloadedBytes) / float64(p.TotalBytes)
	case p.TotalItems > 0:
		f = float64(p.CompletedItems) / float64(p.TotalItems)
	default:
		return 1
	}
	return min(max(f, 0), 1)
}

// FormatSpeed formats download speed for display
func FormatSpeed(bytesPerSec float64) string {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// reportProgress samples the run until done is closed or the context ends.
func (r *run) reportProgress(done <-chan struct{}, out chan<- Progress) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var lastBytes int64
	lastTime := time.Now()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p := r.snapshot()

			now := time.Now()
			if elapsed := now.Sub(lastTime).Seconds(); elapsed > 0 {
				p.Speed = float64(p.DownloadedBytes-lastBytes) / elapsed
				lastBytes = p.DownloadedBytes
				lastTime = now
			}

			select {
			case out <- p:
			default:
			}
		}
	}
}
