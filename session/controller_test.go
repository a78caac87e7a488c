package session

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/cutout/composite"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/util"
)

func newTestController(remover rembg.Remover) *Controller {
	return NewController(New("s1", defaultPolicy()), remover)
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, format, err := util.DecodeImage(data)
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return img
}

func TestController_EndToEnd(t *testing.T) {
	defer util.Trace("TestController_EndToEnd")()

	remover := &fakeRemover{out: testPNG(t, 2, 2, image.Pt(1, 1))}
	c := newTestController(remover)

	require.NoError(t, c.Upload("holiday.final.png", testPNG(t, 2, 2)))
	assert.Equal(t, PhaseStaged, c.Snapshot().Phase)

	require.NoError(t, c.Process(context.Background()))
	s := c.Snapshot()
	require.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, int32(1), remover.calls.Load())
	assert.Equal(t, Subject{Width: 2, Height: 2, Transparent: true, Bounds: image.Rect(0, 0, 2, 2)}, s.Image.Subject)

	data, err := c.Render()
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, uint8(0), color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA).A)

	require.NoError(t, c.SetBackground(composite.Background{Mode: composite.ModeColor, Color: "#FF0000"}))
	data, err = c.Render()
	require.NoError(t, err)
	img = decode(t, data)
	assert.Equal(t, red, color.NRGBAModel.Convert(img.At(1, 1)))
	assert.Equal(t, opaque, color.NRGBAModel.Convert(img.At(0, 0)))

	name, exported, err := c.Export()
	require.NoError(t, err)
	assert.Equal(t, "removed-bg-holiday.png", name)
	assert.Equal(t, image.Rect(0, 0, 2, 2), decode(t, exported).Bounds())
}

func TestController_ProcessFailure(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{err: rembg.ErrTransport})
	require.NoError(t, c.Upload("a.png", testPNG(t, 2, 2)))

	err := c.Process(context.Background())
	assert.ErrorIs(t, err, rembg.ErrTransport)

	s := c.Snapshot()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Nil(t, s.Image)
	assert.Equal(t, MsgRemovalFailed, s.Message)
}

func TestController_ProcessUndecodableResult(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{out: []byte("not a png")})
	require.NoError(t, c.Upload("a.png", testPNG(t, 2, 2)))

	err := c.Process(context.Background())
	assert.ErrorIs(t, err, rembg.ErrNoImageInResponse)
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
}

func TestController_ProcessOpaqueResult(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{out: testPNG(t, 3, 2)})
	require.NoError(t, c.Upload("a.png", testPNG(t, 3, 2)))
	require.NoError(t, c.Process(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, PhaseReady, s.Phase)
	assert.False(t, s.Image.Subject.Transparent)
	assert.Equal(t, image.Rect(0, 0, 3, 2), s.Image.Subject.Bounds)
}

func TestController_ProcessRequiresStagedImage(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{out: testPNG(t, 1, 1)}
	c := newTestController(remover)

	assert.ErrorIs(t, c.Process(context.Background()), ErrInvalidTransition)
	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, int32(0), remover.calls.Load())
	assert.NoError(t, c.Wait(context.Background()))
}

func TestController_StartAndWait(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{
		out:     testPNG(t, 2, 2, image.Pt(0, 0)),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestController(remover)
	require.NoError(t, c.Upload("a.png", testPNG(t, 2, 2)))

	ctx, cancel := context.WithCancel(context.Background())
	done, err := c.Start(ctx)
	require.NoError(t, err)
	<-remover.started

	assert.Equal(t, PhaseProcessing, c.Snapshot().Phase)
	assert.ErrorIs(t, c.Upload("b.png", testPNG(t, 1, 1)), ErrBusy)
	assert.ErrorIs(t, c.Discard(), ErrBusy)
	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	// the request context ending does not cancel the removal
	cancel()
	close(remover.release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, c.Wait(waitCtx))
	<-done

	assert.Equal(t, PhaseReady, c.Snapshot().Phase)
	assert.Equal(t, int32(1), remover.calls.Load())
}

func TestController_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{
		out:     testPNG(t, 1, 1),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestController(remover)
	require.NoError(t, c.Upload("a.png", testPNG(t, 1, 1)))
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	<-remover.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	close(remover.release)
	require.NoError(t, c.Wait(context.Background()))
}

func TestController_ResetDuringRemovalDiscardsResult(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{
		out:     testPNG(t, 2, 2, image.Pt(1, 1)),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestController(remover)
	require.NoError(t, c.Upload("first.png", testPNG(t, 2, 2)))

	_, err := c.Start(context.Background())
	require.NoError(t, err)
	<-remover.started

	require.NoError(t, c.Reset())
	require.NoError(t, c.Upload("second.png", testPNG(t, 2, 2)))
	second := c.Snapshot()
	require.Equal(t, PhaseStaged, second.Phase)

	close(remover.release)
	require.NoError(t, c.Wait(context.Background()))

	s := c.Snapshot()
	assert.Equal(t, PhaseStaged, s.Phase)
	assert.Equal(t, second.Image.ID, s.Image.ID)
	assert.Equal(t, "second.png", s.Image.Name)
	assert.Nil(t, s.Image.Processed)
	assert.Equal(t, second.Revision, s.Revision)
}

func TestController_ProcessReportsStaleResult(t *testing.T) {
	t.Parallel()

	remover := &fakeRemover{
		out:     testPNG(t, 1, 1),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newTestController(remover)
	require.NoError(t, c.Upload("a.png", testPNG(t, 1, 1)))

	errc := make(chan error, 1)
	go func() { errc <- c.Process(context.Background()) }()
	<-remover.started

	require.NoError(t, c.Reset())
	close(remover.release)

	assert.ErrorIs(t, <-errc, ErrStaleResult)
	assert.Equal(t, PhaseIdle, c.Snapshot().Phase)
}

func TestController_RenderCache(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{out: testPNG(t, 2, 2, image.Pt(1, 1))})

	_, err := c.Render()
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, c.Upload("a.png", testPNG(t, 2, 2)))
	require.NoError(t, c.Process(context.Background()))

	first, err := c.Render()
	require.NoError(t, err)
	again, err := c.Render()
	require.NoError(t, err)
	assert.Same(t, &first[0], &again[0])

	require.NoError(t, c.SetBackground(composite.Background{Mode: composite.ModeColor, Color: "#00F"}))
	changed, err := c.Render()
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestController_Preview(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{out: testPNG(t, 8, 4, image.Pt(0, 0))})
	require.NoError(t, c.Upload("wide.png", testPNG(t, 8, 4)))
	require.NoError(t, c.Process(context.Background()))

	small, err := c.Preview(4)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), decode(t, small).Bounds())

	full, err := c.Preview(0)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 4), decode(t, full).Bounds())

	same, err := c.Preview(100)
	require.NoError(t, err)
	assert.Equal(t, full, same)
}

func TestController_Original(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{})
	_, err := c.Original()
	assert.ErrorIs(t, err, ErrNoImage)

	data := testPNG(t, 2, 2)
	require.NoError(t, c.Upload("me.png", data))
	img, err := c.Original()
	require.NoError(t, err)
	assert.Equal(t, data, img.Original)
	assert.Equal(t, "me.png", img.Name)
	assert.Equal(t, "image/png", img.MIMEType)

	_, _, err = c.Export()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestController_UploadRejected(t *testing.T) {
	t.Parallel()

	c := newTestController(&fakeRemover{})
	err := c.Upload("notes.txt", []byte("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	s := c.Snapshot()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, MsgUnsupportedImage, s.Message)
}
