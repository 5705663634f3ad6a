package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/tool"
)

// Image generator defaults.
const (
	DefaultImageEndpoint = "https://api-inference.huggingface.co/models"
	DefaultImageModel    = "stabilityai/stable-diffusion-xl-base-1.0"
	defaultImageTimeout  = 120 * time.Second
	maxImageBytes        = 20 << 20
)

var (
	// ErrBackend is returned when a tool's remote backend fails.
	ErrBackend = errors.New("tools: backend request failed")

	// ErrNotImage is returned when the image backend answers with
	// something other than an image.
	ErrNotImage = errors.New("tools: response is not an image")
)

// ImageGeneratorConfig configures the image_generator tool.
type ImageGeneratorConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	// OutputDir receives generated images. Relative to the data dir when
	// not absolute.
	OutputDir string `yaml:"output_dir"`
}

func (c *ImageGeneratorConfig) defaults(dataDir string) {
	if c.Endpoint == "" {
		c.Endpoint = DefaultImageEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultImageModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultImageTimeout
	}
	if c.OutputDir == "" {
		c.OutputDir = "images"
	}
	if !filepath.IsAbs(c.OutputDir) {
		c.OutputDir = filepath.Join(dataDir, c.OutputDir)
	}
}

// ImageGenerator turns a text prompt into an image file using a Hugging
// Face style text-to-image inference endpoint.
type ImageGenerator struct {
	cfg    ImageGeneratorConfig
	client *http.Client
	filter *security.URLFilter
}

// NewImageGenerator creates the image_generator tool. filter may be nil.
func NewImageGenerator(cfg ImageGeneratorConfig, dataDir string, filter *security.URLFilter) *ImageGenerator {
	cfg.defaults(dataDir)
	return &ImageGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		filter: filter,
	}
}

// Spec implements tool.Tool.
func (g *ImageGenerator) Spec() tool.Spec {
	return tool.Spec{
		Name:        NameImageGenerator,
		Description: "This is a tool that creates an image according to a prompt, which is a text description.",
		Inputs: []tool.Input{{
			Name: "prompt",
			Type: tool.InputString,
			Description: "The image generator prompt. Don't hesitate to add details in the prompt to make " +
				"the image look better, like 'high-res, photorealistic', etc.",
		}},
		OutputType: tool.OutputImage,
	}
}

// Invoke implements tool.Tool.
func (g *ImageGenerator) Invoke(ctx context.Context, args tool.Args) (tool.Result, error) {
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return tool.Result{}, fmt.Errorf("%w: prompt must not be empty", tool.ErrInvalidArgument)
	}

	endpoint := strings.TrimRight(g.cfg.Endpoint, "/") + "/" + g.cfg.Model
	if g.filter != nil {
		if err := g.filter.Check(endpoint); err != nil {
			return tool.Result{}, err
		}
	}

	body, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return tool.Result{}, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return tool.Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return tool.Result{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return tool.Result{}, fmt.Errorf("%w: reading response: %w", ErrBackend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return tool.Result{}, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, backendMessage(data))
	}

	mimeType := http.DetectContentType(data)
	ext, ok := imageExtensions[mimeType]
	if !ok {
		return tool.Result{}, fmt.Errorf("%w: got %s", ErrNotImage, mimeType)
	}

	if err := os.MkdirAll(g.cfg.OutputDir, 0o750); err != nil {
		return tool.Result{}, fmt.Errorf("creating image dir: %w", err)
	}
	path := filepath.Join(g.cfg.OutputDir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return tool.Result{}, fmt.Errorf("writing image: %w", err)
	}
	return tool.Result{Type: tool.OutputImage, Path: path, MIMEType: mimeType}, nil
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// backendMessage extracts a readable error from a backend response body.
func backendMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			return msg.String()
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}
