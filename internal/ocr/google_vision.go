package ocr

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"docvat/pkg/models"
)

// VisionRecognizer implements Recognizer using Google Cloud Vision API.
type VisionRecognizer struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionRecognizer creates a Vision client from the given credentials.
func NewVisionRecognizer(ctx context.Context, creds Credentials) (*VisionRecognizer, error) {
	const op = "NewVisionRecognizer"

	opts := creds.clientOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &VisionRecognizer{client: client}, nil
}

// NewVisionRecognizerWithClient wraps an existing client.
func NewVisionRecognizerWithClient(client *vision.ImageAnnotatorClient) *VisionRecognizer {
	return &VisionRecognizer{client: client}
}

// Recognize runs document text detection on one page.
func (v *VisionRecognizer) Recognize(ctx context.Context, page RawPage, languageHints []string) (models.PageText, error) {
	const op = "VisionRecognizer.Recognize"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: page.PNG},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: languageHints},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return models.PageText{}, WrapOCRError(op, ctx.Err(), fmt.Sprintf("page %d", page.Index+1))
		}
		return models.PageText{}, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return models.PageText{}, WrapOCRError(op, ErrRecognitionFailed, "no response from Vision API")
	}

	return pageFromVision(page.Index, resp.Responses[0])
}

// pageFromVision converts one annotate response into page text. Confidence is
// the mean of the block confidences of the full text annotation.
func pageFromVision(index int, r *visionpb.AnnotateImageResponse) (models.PageText, error) {
	const op = "pageFromVision"

	if r.Error != nil {
		return models.PageText{}, WrapOCRError(op, ErrRecognitionFailed, fmt.Sprintf("Vision API error: %s", r.Error.Message))
	}

	result := models.PageText{Index: index}
	annotation := r.FullTextAnnotation
	if annotation == nil {
		return result, nil
	}
	result.Text = strings.TrimSpace(annotation.Text)

	var confidenceSum float32
	var confidenceCount int
	for _, p := range annotation.Pages {
		for _, block := range p.Blocks {
			if block.Confidence > 0 {
				confidenceSum += block.Confidence
				confidenceCount++
			}
		}
	}
	if confidenceCount > 0 {
		result.Confidence = float64(confidenceSum / float32(confidenceCount))
	}

	return result, nil
}

// Close closes the underlying Vision client.
func (v *VisionRecognizer) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
