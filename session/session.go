// Package session holds the single-image background removal workflow:
// idle -> staged -> processing -> ready, plus the chosen background.
//
// Transitions are pure: Apply(Session, Event) returns the next Session and
// never performs I/O. Controller runs the removal call that Begin implies.
package session

import (
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/gabriel-vasile/mimetype"

	"github.com/chaos-io/cutout/composite"
	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/util"
)

// MaxFileSize is the upload cap used when Policy.MaxFileSize is zero. Files of
// this size or larger are rejected.
const MaxFileSize = 10 * 1024 * 1024

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStaged     Phase = "staged"
	PhaseProcessing Phase = "processing"
	PhaseReady      Phase = "ready"
)

// Image is the one image a session works on. Processed is set exactly once,
// when removal succeeds.
type Image struct {
	ID        string
	Name      string
	MIMEType  string
	Original  []byte
	Processed []byte
	Subject   Subject
}

// Subject describes the processed cutout.
type Subject struct {
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Transparent bool            `json:"transparent"`
	Bounds      image.Rectangle `json:"bounds"`
}

// Policy holds the knobs that shape transitions.
type Policy struct {
	// MaxFileSize is exclusive: a file must be smaller to be accepted.
	MaxFileSize  int64
	AllowedTypes []string
	// KeepOriginalOnFailure returns a failed removal to staged instead of idle.
	KeepOriginalOnFailure bool
}

func (p Policy) maxFileSize() int64 {
	if p.MaxFileSize <= 0 {
		return MaxFileSize
	}
	return p.MaxFileSize
}

type Session struct {
	ID         string
	Phase      Phase
	Image      *Image
	Background composite.Background
	// Message is the user-facing error of the last failed operation.
	Message string
	// Pending tags the in-flight removal with the image it was issued for.
	Pending  string
	Revision uint64
	Policy   Policy
}

func New(id string, policy Policy) Session {
	return Session{
		ID:         id,
		Phase:      PhaseIdle,
		Background: composite.DefaultBackground(),
		Policy:     policy,
	}
}

type Event interface {
	apply(s Session) (Session, error)
}

// Accept stages a newly selected file.
type Accept struct {
	ID   string
	Name string
	Data []byte
}

// Discard drops the staged file.
type Discard struct{}

// Begin marks the staged image as submitted for removal.
type Begin struct{}

// Succeeded delivers the removal result for ImageID.
type Succeeded struct {
	ImageID   string
	Processed []byte
	Subject   Subject
}

// Failed reports that removal for ImageID failed with Err.
type Failed struct {
	ImageID string
	Err     error
}

type SetBackground struct {
	Background composite.Background
}

// Reset starts over from any phase.
type Reset struct{}

// Apply returns the session after ev. On error the returned session is still
// the one to keep: it equals s except possibly for Message.
func Apply(s Session, ev Event) (Session, error) {
	next, err := ev.apply(s)
	if err != nil {
		return next, err
	}
	next.Revision = s.Revision + 1
	return next, nil
}

func guardNotBusy(s Session) error {
	if s.Phase == PhaseProcessing {
		return ErrBusy
	}
	return nil
}

func (e Accept) apply(s Session) (Session, error) {
	if err := guardNotBusy(s); err != nil {
		return s, err
	}
	if s.Phase != PhaseIdle {
		return s, fmt.Errorf("%w: accept in %s", ErrInvalidTransition, s.Phase)
	}

	if int64(len(e.Data)) >= s.Policy.maxFileSize() {
		s.Message = MsgFileTooLarge
		return s, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(e.Data))
	}

	mimeType := mimetype.Detect(e.Data).String()
	if len(s.Policy.AllowedTypes) > 0 && !slices.Contains(s.Policy.AllowedTypes, mimeType) {
		s.Message = MsgUnsupportedImage
		return s, fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	if _, _, err := util.DecodeImage(e.Data); err != nil {
		s.Message = MsgUnsupportedImage
		return s, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}

	s.Image = &Image{
		ID:       e.ID,
		Name:     e.Name,
		MIMEType: mimeType,
		Original: e.Data,
	}
	s.Phase = PhaseStaged
	s.Message = ""
	return s, nil
}

func (Discard) apply(s Session) (Session, error) {
	if err := guardNotBusy(s); err != nil {
		return s, err
	}
	if s.Phase != PhaseStaged {
		return s, fmt.Errorf("%w: discard in %s", ErrInvalidTransition, s.Phase)
	}
	s.Image = nil
	s.Phase = PhaseIdle
	s.Message = ""
	return s, nil
}

func (Begin) apply(s Session) (Session, error) {
	if err := guardNotBusy(s); err != nil {
		return s, err
	}
	if s.Phase != PhaseStaged || s.Image == nil {
		return s, fmt.Errorf("%w: process in %s", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseProcessing
	s.Pending = s.Image.ID
	s.Message = ""
	return s, nil
}

func (e Succeeded) apply(s Session) (Session, error) {
	if s.Phase != PhaseProcessing || s.Pending == "" || e.ImageID != s.Pending {
		return s, ErrStaleResult
	}
	if len(e.Processed) == 0 {
		return Failed{ImageID: e.ImageID, Err: rembg.ErrNoImageInResponse}.apply(s)
	}

	img := *s.Image
	img.Processed = e.Processed
	img.Subject = e.Subject
	s.Image = &img
	s.Phase = PhaseReady
	s.Pending = ""
	return s, nil
}

func (e Failed) apply(s Session) (Session, error) {
	if s.Phase != PhaseProcessing || s.Pending == "" || e.ImageID != s.Pending {
		return s, ErrStaleResult
	}

	s.Pending = ""
	s.Message = MsgRemovalFailed
	if errors.Is(e.Err, rembg.ErrConfiguration) {
		s.Message = MsgNotConfigured
	}

	if s.Policy.KeepOriginalOnFailure {
		s.Phase = PhaseStaged
		return s, nil
	}
	s.Image = nil
	s.Phase = PhaseIdle
	return s, nil
}

func (e SetBackground) apply(s Session) (Session, error) {
	if s.Phase != PhaseReady {
		return s, ErrNotReady
	}
	if err := e.Background.Validate(); err != nil {
		return s, err
	}
	s.Background = e.Background
	return s, nil
}

func (Reset) apply(s Session) (Session, error) {
	return New(s.ID, s.Policy), nil
}
