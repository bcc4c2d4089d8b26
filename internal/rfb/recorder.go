package rfb

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/icza/mjpeg"
)

// DefaultRecorderFPS matches the teacher's MJPegImageEncoder default:
// five sampled frames per second regardless of how often the
// framebuffer actually changes.
const DefaultRecorderFPS = 5

// recorderQueueDepth bounds how many pending frames the recorder
// goroutine may lag behind by before feed starts dropping frames.
const recorderQueueDepth = 4

// Recorder captures the broadcast stream to a viewable AVI/MJPEG file.
// It is entirely best-effort: nothing it does can block or fail a live
// session, and once writing fails it disables itself for the rest of
// the run rather than retrying indefinitely.
type Recorder struct {
	log      Logger
	fps      int32
	interval time.Duration

	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	disabled bool
	last     time.Time
	writer   mjpeg.AviWriter
}

// NewRecorder opens path (a ".avi" suffix is appended if missing) for
// writing and starts the background encode goroutine. width and
// height are the framebuffer dimensions at the time recording starts;
// a mid-run resize disables the recorder, since MJPEG containers carry
// one fixed frame size.
func NewRecorder(path string, width, height uint16, fps int32, log Logger) (*Recorder, error) {
	if log == nil {
		log = noopLogger{}
	}
	if fps <= 0 {
		fps = DefaultRecorderFPS
	}
	if len(path) < 4 || path[len(path)-4:] != ".avi" {
		path = path + ".avi"
	}
	writer, err := mjpeg.New(path, int32(width), int32(height), fps)
	if err != nil {
		return nil, fmt.Errorf("rfb: opening recorder output %s: %w", path, err)
	}
	r := &Recorder{
		log:      log,
		fps:      fps,
		interval: time.Second / time.Duration(fps),
		frames:   make(chan []byte, recorderQueueDepth),
		done:     make(chan struct{}),
		writer:   writer,
	}
	go r.run(int(width), int(height))
	return r, nil
}

// feed offers buf to the recorder's encode goroutine. It never blocks:
// if the goroutine is behind, the frame is silently dropped, matching
// the "no backpressure on live sessions" guarantee.
func (r *Recorder) feed(buf []byte) {
	r.mu.Lock()
	disabled := r.disabled
	skip := time.Since(r.last) < r.interval
	r.mu.Unlock()
	if disabled || skip {
		return
	}
	cp := append([]byte(nil), buf...)
	select {
	case <-r.done:
	case r.frames <- cp:
		r.mu.Lock()
		r.last = time.Now()
		r.mu.Unlock()
	default:
		r.log.Debug("recorder queue full, dropping frame")
	}
}

func (r *Recorder) run(width, height int) {
	for {
		select {
		case buf, ok := <-r.frames:
			if !ok {
				return
			}
			if len(buf) != width*height*4 {
				r.log.Warn("recorder disabled after frame size change")
				r.mu.Lock()
				r.disabled = true
				r.mu.Unlock()
				continue
			}
			if err := r.encodeFrame(buf, width, height); err != nil {
				r.log.Warn("recorder disabled after write error", "error", err)
				r.mu.Lock()
				r.disabled = true
				r.mu.Unlock()
			}
		case <-r.done:
			return
		}
	}
}

func (r *Recorder) encodeFrame(buf []byte, width, height int) error {
	img := bgraToImage(buf, width, height)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, nil); err != nil {
		return fmt.Errorf("rfb: jpeg-encoding recorded frame: %w", err)
	}
	return r.writer.AddFrame(out.Bytes())
}

// close stops the encode goroutine and finalizes the AVI container. It
// is safe to call multiple times and safe to call even if the
// recorder already disabled itself after a write error.
func (r *Recorder) close() {
	r.once.Do(func() {
		close(r.done)
		if err := r.writer.Close(); err != nil {
			r.log.Warn("recorder close failed", "error", err)
		}
	})
}

// bgraToImage adapts the server's native BGRA pixel layout to
// image.Image: image.NRGBA expects R,G,B,A order, so this walks the
// buffer once and reorders each pixel, forcing alpha opaque since the framebuffer's fourth byte
// carries no meaningful value in this protocol.
func bgraToImage(buf []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i+4 <= len(buf) && i/4 < width*height; i += 4 {
		b, g, r := buf[i], buf[i+1], buf[i+2]
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
	}
	return img
}
