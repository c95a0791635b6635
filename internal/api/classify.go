package api

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leafnet/leafnet-go/internal/leafnet"
	"github.com/leafnet/leafnet-go/internal/logger"
)

const defaultMaxUploadSize = 10 << 20

// TestModelResponse is returned by POST /api/v1/test.
type TestModelResponse struct {
	Result           string                     `json:"result"`
	Confidence       float64                    `json:"confidence"`
	AllProbabilities []leafnet.ClassProbability `json:"allProbabilities"`
}

// DetectRequest is the body of POST /api/v1/detect.
type DetectRequest struct {
	Image string `json:"image"`
}

// DetectResponse is returned by POST /api/v1/detect.
type DetectResponse struct {
	Class            string             `json:"class"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
}

func (c *Controller) maxUploadSize() int64 {
	if c.Settings != nil && c.Settings.WebServer.MaxUploadSize > 0 {
		return c.Settings.WebServer.MaxUploadSize
	}
	return defaultMaxUploadSize
}

// TestModel classifies an uploaded multipart "image" without touching the store.
func (c *Controller) TestModel(ctx echo.Context) error {
	if ctx.Request().Method != http.MethodPost {
		return c.HandleError(ctx, nil, "Method not allowed", http.StatusMethodNotAllowed)
	}

	fh, err := ctx.FormFile("image")
	if err != nil {
		return c.HandleError(ctx, nil, "No image uploaded", http.StatusBadRequest)
	}
	if fh.Size > c.maxUploadSize() {
		return c.HandleError(ctx, nil, "Image too large", http.StatusRequestEntityTooLarge)
	}

	f, err := fh.Open()
	if err != nil {
		return c.HandleError(ctx, err, "Error processing image", http.StatusInternalServerError)
	}
	defer func() { _ = f.Close() }()

	result, err := c.classifyReader(ctx, f)
	if err != nil {
		return c.HandleError(ctx, err, "Error processing image", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, TestModelResponse{
		Result:           result.Class,
		Confidence:       result.Confidence,
		AllProbabilities: result.Probabilities,
	})
}

// DetectDisease classifies a base64 encoded image from a JSON body.
func (c *Controller) DetectDisease(ctx echo.Context) error {
	var req DetectRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request. Please provide an image in base64 format.", http.StatusBadRequest)
	}
	if strings.TrimSpace(req.Image) == "" {
		return c.HandleError(ctx, nil, "Empty image data", http.StatusBadRequest)
	}

	data, err := decodeImageData(req.Image)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid base64 image data", http.StatusBadRequest)
	}
	if int64(len(data)) > c.maxUploadSize() {
		return c.HandleError(ctx, nil, "Image too large", http.StatusRequestEntityTooLarge)
	}

	result, err := c.classifyReader(ctx, bytes.NewReader(data))
	if err != nil {
		return c.HandleError(ctx, err, "Error processing image", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, DetectResponse{
		Class:            result.Class,
		Confidence:       result.Confidence,
		AllProbabilities: result.ProbabilityMap(),
	})
}

func (c *Controller) classifyReader(ctx echo.Context, r io.Reader) (*leafnet.Result, error) {
	tensor, err := c.Preprocessor.PreprocessReader(r)
	if err != nil {
		return nil, err
	}
	result, err := c.Classifier.Classify(ctx.Request().Context(), tensor)
	if err != nil {
		return nil, err
	}
	c.log.Debug("ad-hoc classification",
		logger.String("path", ctx.Path()),
		logger.String("class", result.Class),
		logger.Float64("confidence", result.Confidence))
	return result, nil
}

// decodeImageData accepts raw base64 or a data URL.
func decodeImageData(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some clients drop the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, err
}
