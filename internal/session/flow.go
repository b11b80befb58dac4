// Package session owns the capture flow: the three-phase state machine that
// walks a visitor from a live camera through a captured preview to an
// uploaded photo. All state is in memory and lives for one visit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/dotframe/snapbooth/internal/camera"
	"github.com/dotframe/snapbooth/internal/filter"
	"github.com/dotframe/snapbooth/internal/raster"
)

type Phase string

const (
	PhaseCamera     Phase = "camera"
	PhasePreview    Phase = "preview"
	PhaseProcessing Phase = "processing"
)

const (
	// GenericUploadMessage is the one user-facing failure message. Network,
	// authorization and quota failures all collapse into it.
	GenericUploadMessage = "Something went wrong while processing your photo. Please try again."

	// DownloadFilename is the fixed name the result is saved under.
	DownloadFilename = "artistic-photo.png"

	originalsPrefix    = "originals"
	uploadCacheControl = "max-age=3600"
)

var (
	ErrBusy     = errors.New("an operation is already pending")
	ErrClosed   = errors.New("session is closed")
	ErrNoPhoto  = errors.New("no captured photo")
	ErrNoResult = errors.New("no processed result available")
)

// PhaseError reports an operation invoked outside its legal phase. The
// exposed controls never produce one; direct API callers can.
type PhaseError struct {
	Op    string
	Phase Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("operation %q is not allowed in phase %q", e.Op, e.Phase)
}

type event string

const (
	eventCapture      event = "capture"
	eventSelectFilter event = "select_filter"
	eventUploadFailed event = "upload_failed"
	eventRetake       event = "retake"
)

// next is the pure transition function of the machine. It has no side
// effects so the legal-transition table is testable on its own.
func next(from Phase, ev event) (Phase, error) {
	switch ev {
	case eventCapture:
		if from == PhaseCamera {
			return PhasePreview, nil
		}
	case eventSelectFilter:
		if from == PhasePreview {
			return PhaseProcessing, nil
		}
	case eventUploadFailed:
		if from == PhaseProcessing {
			return PhasePreview, nil
		}
	case eventRetake:
		if from == PhasePreview || from == PhaseProcessing {
			return PhaseCamera, nil
		}
	}
	return from, &PhaseError{Op: string(ev), Phase: from}
}

// Uploader is the object-storage collaborator seen from the flow's side.
type Uploader interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType, cacheControl string) error
	PublicURL(objectKey string) string
}

// Upload is the outcome of a successful select-filter operation.
type Upload struct {
	ObjectKey string
	PublicURL string
	FilterID  string
	Width     int
	Height    int
	Bytes     int
	At        time.Time
}

// Flow is one capture session. A Flow owns its camera stream exclusively:
// the stream is acquired on entry to the camera phase and released on every
// exit path, including Close.
type Flow struct {
	logger      *log.Logger
	device      camera.Device
	uploader    Uploader
	constraints camera.Constraints
	now         func() time.Time

	mu        sync.Mutex
	phase     Phase
	stream    camera.Stream
	raw       *raster.Buffer
	filterID  string
	resultURL string
	resultKey string
	errMsg    string
	pending   bool
	closed    bool
}

func NewFlow(logger *log.Logger, device camera.Device, uploader Uploader) *Flow {
	return &Flow{
		logger:      logger,
		device:      device,
		uploader:    uploader,
		constraints: camera.Constraints{Facing: camera.FacingUser},
		now:         time.Now,
		phase:       PhaseCamera,
	}
}

// SetConstraints overrides the default user-facing constraints before the
// stream is acquired. Used by the headless booth to ask for a resolution.
func (f *Flow) SetConstraints(c camera.Constraints) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		f.constraints = c
	}
}

// AcquireCamera binds a live stream, the entry action of the camera phase.
// Failure leaves the preview blank: it is logged, not surfaced to the
// visitor, and the flow stays in the camera phase without a stream.
func (f *Flow) AcquireCamera(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.phase != PhaseCamera {
		phase := f.phase
		f.mu.Unlock()
		return &PhaseError{Op: "acquire_camera", Phase: phase}
	}
	if f.stream != nil {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	stream, err := f.device.Acquire(ctx, f.constraints)
	if err != nil {
		f.logger.Printf("camera acquisition failed: %v", err)
		return fmt.Errorf("acquire camera: %w", err)
	}

	f.mu.Lock()
	if f.closed || f.phase != PhaseCamera || f.stream != nil {
		// The flow moved on while we were acquiring; do not leak the stream.
		f.mu.Unlock()
		stream.Close()
		return nil
	}
	f.stream = stream
	f.mu.Unlock()
	return nil
}

// Capture snapshots the current video frame into a raster buffer at the
// stream's native resolution and moves to preview. Without a bound stream
// or a ready frame it is a no-op.
func (f *Flow) Capture(ctx context.Context) (View, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return View{}, ErrClosed
	}
	if f.pending {
		f.mu.Unlock()
		return View{}, ErrBusy
	}
	if _, err := next(f.phase, eventCapture); err != nil {
		f.mu.Unlock()
		return View{}, err
	}
	stream := f.stream
	f.mu.Unlock()

	if stream == nil {
		return f.Snapshot(), nil
	}

	frame, err := stream.Frame(ctx)
	if errors.Is(err, camera.ErrNoFrame) {
		return f.Snapshot(), nil
	}
	if err != nil {
		return View{}, fmt.Errorf("read camera frame: %w", err)
	}

	buf, err := raster.Snapshot(frame)
	if err != nil {
		return View{}, fmt.Errorf("capture frame: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return View{}, ErrClosed
	}
	phase, err := next(f.phase, eventCapture)
	if err != nil {
		return View{}, err
	}
	f.raw = buf
	f.phase = phase
	f.releaseStreamLocked()
	return f.viewLocked(), nil
}

// SelectFilter records the choice, clears any prior error and result, and
// uploads the raw photo under originals/photo-<timestamp>.png. On success
// the result is the public URL of the upload; on any failure the flow falls
// back to preview carrying the generic message. Competing calls while the
// upload is in flight are rejected.
func (f *Flow) SelectFilter(ctx context.Context, filterID string) (Upload, error) {
	chosen, err := filter.Lookup(filterID)
	if err != nil {
		return Upload{}, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Upload{}, ErrClosed
	}
	if f.pending {
		f.mu.Unlock()
		return Upload{}, ErrBusy
	}
	phase, err := next(f.phase, eventSelectFilter)
	if err != nil {
		f.mu.Unlock()
		return Upload{}, err
	}
	if f.raw == nil {
		f.mu.Unlock()
		return Upload{}, ErrNoPhoto
	}
	raw := f.raw
	f.phase = phase
	f.filterID = chosen.ID
	f.errMsg = ""
	f.resultURL = ""
	f.resultKey = ""
	f.pending = true
	f.mu.Unlock()

	at := f.now().UTC()
	objectKey := path.Join(originalsPrefix, fmt.Sprintf("photo-%d.png", at.Unix()))
	uploadErr := f.uploader.Upload(ctx, objectKey, raw.PNG, raster.ContentType, uploadCacheControl)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = false
	if f.closed {
		return Upload{}, ErrClosed
	}

	if uploadErr != nil {
		f.phase, _ = next(f.phase, eventUploadFailed)
		f.errMsg = GenericUploadMessage
		f.resultURL = ""
		f.resultKey = ""
		return Upload{}, fmt.Errorf("upload photo: %w", uploadErr)
	}

	f.resultURL = f.uploader.PublicURL(objectKey)
	f.resultKey = objectKey
	return Upload{
		ObjectKey: objectKey,
		PublicURL: f.resultURL,
		FilterID:  chosen.ID,
		Width:     raw.Width,
		Height:    raw.Height,
		Bytes:     len(raw.PNG),
		At:        at,
	}, nil
}

// Retake discards the captured photo and the filter choice and re-enters
// the camera phase, re-acquiring the device stream.
func (f *Flow) Retake(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.pending {
		f.mu.Unlock()
		return ErrBusy
	}
	phase, err := next(f.phase, eventRetake)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.phase = phase
	f.raw = nil
	f.filterID = ""
	f.errMsg = ""
	f.resultURL = ""
	f.resultKey = ""
	f.mu.Unlock()

	if err := f.AcquireCamera(ctx); err != nil {
		// Acquisition failure on retake is silent, same as on first entry.
		return nil
	}
	return nil
}

// Result returns the public URL of the uploaded photo once it exists.
func (f *Flow) Result() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrClosed
	}
	if f.resultURL == "" {
		return "", ErrNoResult
	}
	return f.resultURL, nil
}

// ResultKey returns the object key behind the result URL, for handlers that
// proxy the download.
func (f *Flow) ResultKey() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrClosed
	}
	if f.resultKey == "" {
		return "", ErrNoResult
	}
	return f.resultKey, nil
}

// Close releases the camera stream and invalidates the flow. Safe to call
// from any phase, any number of times.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.raw = nil
	f.releaseStreamLocked()
}

func (f *Flow) releaseStreamLocked() {
	if f.stream == nil {
		return
	}
	f.stream.Close()
	f.stream = nil
}

// View is a read-only snapshot of the machine for rendering and assertions.
type View struct {
	Phase     Phase  `json:"state"`
	HasPhoto  bool   `json:"has_photo"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	FilterID  string `json:"filter_id,omitempty"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Pending   bool   `json:"pending"`
}

func (f *Flow) Snapshot() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Flow) viewLocked() View {
	v := View{
		Phase:     f.phase,
		HasPhoto:  f.raw != nil,
		FilterID:  f.filterID,
		ResultURL: f.resultURL,
		Error:     f.errMsg,
		Pending:   f.pending,
	}
	if f.raw != nil {
		v.Width = f.raw.Width
		v.Height = f.raw.Height
	}
	return v
}
