package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"visionctl/internal/model"
	"visionctl/internal/protocol"
)

// ImageFile is an image read from disk and checked locally before upload.
type ImageFile struct {
	Filename    string `validate:"required"`
	ContentType string `validate:"required,imagemime"`
	Data        []byte `validate:"min=1"`
}

// UploadRequest is a labeled image for POST /upload.
type UploadRequest struct {
	Image ImageFile
	Label string `validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("imagemime", func(fl validator.FieldLevel) bool {
		return isImageMIME(fl.Field().String())
	})
	return v
}

func isImageMIME(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// LoadImage reads path and detects its MIME type. Oversized files are
// rejected from their size alone, before reading.
func LoadImage(path string, maxBytes int64) (ImageFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ImageFile{}, &model.ValidationError{Field: "file", Message: "select an image first"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ImageFile{}, &model.ValidationError{Field: "file", Message: fmt.Sprintf("%s does not exist", path)}
		}
		return ImageFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return ImageFile{}, &model.ValidationError{Field: "file", Message: fmt.Sprintf("%s is a directory", path)}
	}
	if err := checkSize(info.Size(), maxBytes); err != nil {
		return ImageFile{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	img := ImageFile{
		Filename:    filepath.Base(path),
		ContentType: DetectContentType(path, data),
		Data:        data,
	}
	if err := img.Validate(maxBytes); err != nil {
		return ImageFile{}, err
	}
	return img, nil
}

// DetectContentType prefers the extension's type, like a browser file
// picker does, and sniffs the content otherwise.
func DetectContentType(filename string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
		return byExt
	}
	sniffed := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil {
		return mediaType
	}
	return sniffed
}

// Validate applies the local upload constraints.
func (f ImageFile) Validate(maxBytes int64) error {
	if err := validate.Struct(f); err != nil {
		return translateValidation(err, f)
	}
	return checkSize(int64(len(f.Data)), maxBytes)
}

// Validate checks the image and the label.
func (r UploadRequest) Validate(maxBytes int64) error {
	if err := r.Image.Validate(maxBytes); err != nil {
		return err
	}
	r.Label = strings.TrimSpace(r.Label)
	if err := validate.Struct(r); err != nil {
		return translateValidation(err, r.Image)
	}
	return nil
}

func checkSize(size, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = protocol.DefaultMaxUploadBytes
	}
	if size > maxBytes {
		return &model.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file is too large (%s, limit %s)", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxBytes))),
		}
	}
	return nil
}

func translateValidation(err error, img ImageFile) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.ValidationError{Field: "request", Message: err.Error()}
	}
	fe := verrs[0]
	switch fe.StructField() {
	case "Label":
		return &model.ValidationError{Field: "label", Message: "enter a label for the image"}
	case "ContentType":
		got := img.ContentType
		if got == "" {
			got = "unknown type"
		}
		return &model.ValidationError{Field: "file", Message: fmt.Sprintf("file must be an image (got %s)", got)}
	default:
		return &model.ValidationError{Field: "file", Message: "select an image first"}
	}
}

// Upload sends a labeled image. Local validation runs first and no request
// is made when it fails.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (model.UploadResult, error) {
	req.Label = strings.TrimSpace(req.Label)
	if err := req.Validate(c.MaxUploadBytes); err != nil {
		return model.UploadResult{}, err
	}

	body, contentType, err := buildImageForm(req.Image, map[string]string{protocol.FormFieldLabel: req.Label})
	if err != nil {
		return model.UploadResult{}, &model.APIError{Op: "upload", Kind: model.KindTransport, Message: "failed to build upload body", Cause: err}
	}

	var out model.UploadResult
	if err := c.do(ctx, "upload", http.MethodPost, protocol.PathUpload, bytes.NewReader(body), contentType, &out); err != nil {
		return model.UploadResult{}, err
	}
	c.InvalidateImages()
	return out, nil
}

// Predict classifies an image and returns the matched training images.
func (c *Client) Predict(ctx context.Context, img ImageFile) (model.PredictionResult, error) {
	if err := img.Validate(c.MaxUploadBytes); err != nil {
		return model.PredictionResult{}, err
	}

	body, contentType, err := buildImageForm(img, nil)
	if err != nil {
		return model.PredictionResult{}, &model.APIError{Op: "predict", Kind: model.KindTransport, Message: "failed to build predict body", Cause: err}
	}

	var out model.PredictionResult
	if err := c.do(ctx, "predict", http.MethodPost, protocol.PathPredictWithMatch, bytes.NewReader(body), contentType, &out); err != nil {
		return model.PredictionResult{}, err
	}
	return out, nil
}

func buildImageForm(img ImageFile, fields map[string]string) ([]byte, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, protocol.FormFieldFile, img.Filename))
	header.Set("Content-Type", img.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}
