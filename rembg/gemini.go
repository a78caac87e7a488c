package rembg

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/chaos-io/cutout/util"
)

const (
	DefaultModel = "gemini-2.5-flash-image"

	// Instruction is sent verbatim alongside every image.
	Instruction = "Please remove the background of this image. Keep the main subject (person, animal, or object) " +
		"perfectly intact with crisp edges. The output MUST be an image where the entire background is replaced " +
		"with transparency (alpha channel). Do not change the subject. Return only the edited image."
)

// generator is the part of genai.Models the remover needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini removes backgrounds with a Gemini image model. It issues exactly one
// request per call and never retries.
//
// The inline image is labelled with its sniffed MIME type (image/jpeg,
// image/webp, ...) rather than always image/png, so the model is never told a
// JPEG is a PNG. Unrecognised input falls back to image/png.
type Gemini struct {
	apiKey  string
	model   string
	timeout time.Duration

	mu     sync.Mutex
	models generator
}

func NewGemini(apiKey, model string, timeout time.Duration) *Gemini {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		timeout: timeout,
	}
}

// Configured reports whether an API key is present.
func (g *Gemini) Configured() bool {
	return g.apiKey != ""
}

func (g *Gemini) ensureClient(ctx context.Context) (generator, error) {
	if g.apiKey == "" {
		return nil, ErrConfiguration
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.models == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		g.models = client.Models
	}
	return g.models, nil
}

func (g *Gemini) Remove(ctx context.Context, data []byte) ([]byte, error) {
	models, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := StripDataURI(data)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(raw, requestMIMEType(raw)),
			genai.NewPartFromText(Instruction),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		util.Logger.Error("gemini request failed",
			zap.String("model", g.model),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	blob, err := firstImage(resp)
	if err != nil {
		return nil, err
	}

	out, err := toPNG(blob.Data)
	if err != nil {
		return nil, err
	}

	util.Logger.Debug("gemini request succeeded",
		zap.String("model", g.model),
		zap.String("mime_type", blob.MIMEType),
		zap.Int("bytes", len(out)),
		zap.Duration("cost", time.Since(start)))
	return out, nil
}

// requestMIMEType labels the upload with its sniffed type, defaulting to PNG.
func requestMIMEType(raw []byte) string {
	m := mimetype.Detect(raw)
	if strings.HasPrefix(m.String(), "image/") {
		return m.String()
	}
	return "image/png"
}

// firstImage returns the first inline image part of the first candidate.
func firstImage(resp *genai.GenerateContentResponse) (*genai.Blob, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData, nil
		}
	}
	return nil, ErrNoImageInResponse
}

// toPNG re-encodes the model output as PNG unless it already is one.
func toPNG(data []byte) ([]byte, error) {
	img, format, err := util.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoImageInResponse, err)
	}
	if format == "png" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
