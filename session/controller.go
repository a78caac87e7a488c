package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/composite"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/util"
)

// subjectAlphaThreshold is the alpha fraction above which a pixel counts as subject.
const subjectAlphaThreshold = 0.5

// Controller owns one Session and performs the effects its transitions imply.
// It is safe for concurrent use; the removal call runs without holding the lock.
type Controller struct {
	mu       sync.Mutex
	state    Session
	lastUsed time.Time
	rendered renderCache
	done     chan struct{}

	remover rembg.Remover
	now     func() time.Time
}

type renderCache struct {
	revision uint64
	data     []byte
}

func NewController(s Session, remover rembg.Remover) *Controller {
	return &Controller{
		state:    s,
		remover:  remover,
		now:      time.Now,
		lastUsed: time.Now(),
	}
}

func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastUsed is when the session last saw any operation.
func (c *Controller) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *Controller) apply(ev Event) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(ev)
}

func (c *Controller) applyLocked(ev Event) (Session, error) {
	next, err := Apply(c.state, ev)
	c.state = next
	c.lastUsed = c.now()
	return next, err
}

// Upload runs the file acceptance gate for a newly selected file.
func (c *Controller) Upload(name string, data []byte) error {
	s, err := c.apply(Accept{ID: ksuid.New().String(), Name: name, Data: data})
	if err != nil {
		util.Logger.Info("file rejected",
			zap.String("session", s.ID),
			zap.String("name", name),
			zap.Int("size", len(data)),
			zap.Error(err))
		return err
	}
	util.Logger.Info("file accepted",
		zap.String("session", s.ID),
		zap.String("image", s.Image.ID),
		zap.String("name", name),
		zap.String("mime_type", s.Image.MIMEType),
		zap.Int("size", len(data)))
	return nil
}

func (c *Controller) Discard() error {
	_, err := c.apply(Discard{})
	return err
}

func (c *Controller) Reset() error {
	_, err := c.apply(Reset{})
	return err
}

func (c *Controller) SetBackground(bg composite.Background) error {
	_, err := c.apply(SetBackground{Background: bg})
	return err
}

// Process submits the staged image and blocks until the removal call ends.
// It returns ErrStaleResult when the session was reset meanwhile.
func (c *Controller) Process(ctx context.Context) error {
	tag, data, done, err := c.begin()
	if err != nil {
		return err
	}
	defer close(done)
	return c.run(ctx, tag, data)
}

// Start submits the staged image and runs removal in the background, detached
// from ctx cancellation. The returned channel closes when the call has ended.
func (c *Controller) Start(ctx context.Context) (<-chan struct{}, error) {
	tag, data, done, err := c.begin()
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(done)
		_ = c.run(context.WithoutCancel(ctx), tag, data)
	}()
	return done, nil
}

// Wait blocks until the in-flight removal, if any, has ended or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) begin() (string, []byte, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.applyLocked(Begin{})
	if err != nil {
		return "", nil, nil, err
	}
	done := make(chan struct{})
	c.done = done
	util.Logger.Info("background removal started",
		zap.String("session", s.ID),
		zap.String("image", s.Pending))
	return s.Pending, s.Image.Original, done, nil
}

func (c *Controller) run(ctx context.Context, tag string, data []byte) error {
	defer util.Trace("remove background " + tag)()
	start := time.Now()

	ev, removeErr := c.remove(ctx, tag, data)

	c.mu.Lock()
	s, err := c.applyLocked(ev)
	c.mu.Unlock()

	switch {
	case errors.Is(err, ErrStaleResult):
		util.Logger.Info("discarding stale removal result",
			zap.String("session", s.ID),
			zap.String("image", tag))
		return ErrStaleResult
	case err != nil:
		return err
	case removeErr != nil:
		util.Logger.Warn("background removal failed",
			zap.String("session", s.ID),
			zap.String("image", tag),
			zap.Duration("cost", time.Since(start)),
			zap.Error(removeErr))
		return removeErr
	}

	util.Logger.Info("background removal succeeded",
		zap.String("session", s.ID),
		zap.String("image", tag),
		zap.Duration("cost", time.Since(start)))
	return nil
}

// remove calls the remover and turns the outcome into the event to apply.
func (c *Controller) remove(ctx context.Context, tag string, data []byte) (Event, error) {
	processed, err := c.remover.Remove(ctx, data)
	if err != nil {
		return Failed{ImageID: tag, Err: err}, err
	}

	img, _, err := util.DecodeImage(processed)
	if err != nil {
		err = fmt.Errorf("%w: %w", rembg.ErrNoImageInResponse, err)
		return Failed{ImageID: tag, Err: err}, err
	}

	subject := Subject{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		Transparent: composite.HasUsefulAlpha(img),
	}
	if bounds, err := composite.AlphaBBox(img, subjectAlphaThreshold); err == nil {
		subject.Bounds = bounds
	}
	if !subject.Transparent {
		util.Logger.Warn("removal result has no transparent pixels", zap.String("image", tag))
	}

	return Succeeded{ImageID: tag, Processed: processed, Subject: subject}, nil
}

// Render returns the composited PNG for the current subject and background.
// The result is cached until the next transition.
func (c *Controller) Render() ([]byte, error) {
	c.mu.Lock()
	s := c.state
	cached := c.rendered
	c.lastUsed = c.now()
	c.mu.Unlock()

	if s.Phase != PhaseReady || s.Image == nil {
		return nil, ErrNotReady
	}
	if cached.data != nil && cached.revision == s.Revision {
		return cached.data, nil
	}

	data, err := composite.Render(s.Image.Processed, s.Background)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state.Revision == s.Revision {
		c.rendered = renderCache{revision: s.Revision, data: data}
	}
	c.mu.Unlock()
	return data, nil
}

// Preview renders the composite with its longest side limited to maxSize.
func (c *Controller) Preview(maxSize int) ([]byte, error) {
	data, err := c.Render()
	if err != nil || maxSize <= 0 {
		return data, err
	}

	img, _, err := util.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	if max(img.Bounds().Dx(), img.Bounds().Dy()) <= maxSize {
		return data, nil
	}
	return composite.EncodePNG(composite.ResizeWithinMax(img, maxSize))
}

// Export returns the download name and PNG bytes of the composite.
func (c *Controller) Export() (string, []byte, error) {
	s := c.Snapshot()
	if s.Image == nil {
		return "", nil, ErrNotReady
	}
	data, err := c.Render()
	if err != nil {
		return "", nil, err
	}
	return composite.ExportName(s.Image.Name), data, nil
}

// Original returns the uploaded file as it was accepted.
func (c *Controller) Original() (*Image, error) {
	s := c.Snapshot()
	if s.Image == nil {
		return nil, ErrNoImage
	}
	return s.Image, nil
}
