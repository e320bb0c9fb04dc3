package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"ChatBridge/core"
	"ChatBridge/lib/sl"

	"github.com/sashabaranov/go-openai"
)

const (
	maxErrorBody    = 512
	maxImageSize    = 32 << 20
	maxPromptInName = 64
)

var (
	notAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)
	// path separators and control characters can't appear in a file name
	unsafeInPath = regexp.MustCompile(`[/\\\x00-\x1f\x7f]`)
)

// GeneratedImage lives only until it is published
type GeneratedImage struct {
	Data     []byte
	FileName string
	Prompt   string
}

// ImageBackend performs the upstream call for one prompt and returns the
// decoded image
type ImageBackend interface {
	Fetch(ctx context.Context, prompt string) ([]byte, error)
}

type ImageGenerator struct {
	backend ImageBackend
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func NewImageGenerator(backend ImageBackend, timeout time.Duration, log *slog.Logger) *ImageGenerator {
	return &ImageGenerator{
		backend: backend,
		timeout: timeout,
		now:     time.Now,
		log:     log.With(sl.Module("image")),
	}
}

// NewImageBackend picks the backend named by image.provider
func NewImageBackend(conf *core.Config) (ImageBackend, error) {
	switch conf.Image.Provider {
	case core.ImageProviderInference:
		return NewInferenceBackend(conf.Image.URL, conf.Image.ApiKey, nil), nil
	case core.ImageProviderOpenAI:
		apiKey := conf.Image.ApiKey
		if apiKey == "" {
			apiKey = conf.Chat.ApiKey
		}
		config := openai.DefaultConfig(apiKey)
		if conf.Image.BaseURL != "" {
			config.BaseURL = conf.Image.BaseURL
		}
		return NewOpenAIImageBackend(openai.NewClientWithConfig(config), conf.Image.Model, conf.Image.Size), nil
	default:
		return nil, fmt.Errorf("unknown image provider: %s", conf.Image.Provider)
	}
}

// Generate asks the backend for an image of prompt. The call is cancelled
// after the configured timeout and reported as core.ErrImageTimeout.
func (g *ImageGenerator) Generate(ctx context.Context, prompt, userId string) (*GeneratedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, core.ErrInvalidPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	data, err := g.backend.Fetch(ctx, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", core.ErrImageTimeout, g.timeout)
		}
		return nil, err
	}

	image := &GeneratedImage{
		Data:     data,
		FileName: ImageFileName(userId, prompt, g.now()),
		Prompt:   prompt,
	}
	g.log.With(
		sl.User(userId),
		slog.String("file", image.FileName),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	).Info("image generated")
	return image, nil
}

// ImageFileName returns {userId}-{epochMillis}-{prompt}.png with everything
// but letters and digits removed from the prompt
func ImageFileName(userId, prompt string, at time.Time) string {
	name := notAlphanumeric.ReplaceAllString(prompt, "")
	if len(name) > maxPromptInName {
		name = name[:maxPromptInName]
	}
	return fmt.Sprintf("%s-%d-%s.png", fileNameUser(userId), at.UnixMilli(), name)
}

// fileNameUser keeps the user id as is unless it could escape the upload
// directory. An unsafe id is escaped and suffixed with a hash of the original
// so two different ids never share a name.
func fileNameUser(userId string) string {
	if userId != "" && !unsafeInPath.MatchString(userId) && !strings.HasPrefix(userId, ".") {
		return userId
	}
	safe := unsafeInPath.ReplaceAllString(userId, "_")
	if strings.HasPrefix(safe, ".") {
		safe = "_" + strings.TrimLeft(safe, ".")
	}
	sum := sha256.Sum256([]byte(userId))
	return safe + "_" + hex.EncodeToString(sum[:4])
}

// InferenceBackend posts {"inputs": prompt} and receives the raw image bytes
type InferenceBackend struct {
	url    string
	apiKey string
	client *http.Client
}

func NewInferenceBackend(url, apiKey string, client *http.Client) *InferenceBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &InferenceBackend{url: url, apiKey: apiKey, client: client}
}

func (b *InferenceBackend) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	jsonBytes, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(jsonBytes))
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &core.ImageError{Err: err}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, &core.ImageError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.ImageError{Status: resp.StatusCode, Body: truncate(string(body))}
	}
	if len(body) == 0 {
		return nil, &core.ImageError{Status: resp.StatusCode, Body: "empty image payload"}
	}
	// some inference errors come back as 200 with a JSON document
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return nil, &core.ImageError{Status: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

// OpenAIImageBackend requests a base64 encoded image from an OpenAI
// compatible images endpoint
type OpenAIImageBackend struct {
	client *openai.Client
	model  string
	size   string
}

func NewOpenAIImageBackend(client *openai.Client, model, size string) *OpenAIImageBackend {
	return &OpenAIImageBackend{client: client, model: model, size: size}
}

func (b *OpenAIImageBackend) Fetch(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := b.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          b.model,
		N:              1,
		Size:           b.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &core.ImageError{Status: apiErr.HTTPStatusCode, Body: truncate(apiErr.Message), Err: err}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, &core.ImageError{Status: reqErr.HTTPStatusCode, Err: err}
		}
		return nil, &core.ImageError{Err: err}
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &core.ImageError{Status: http.StatusOK, Body: "response has no b64_json field"}
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &core.ImageError{Status: http.StatusOK, Body: "b64_json is not valid base64", Err: err}
	}
	return data, nil
}

func truncate(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > maxErrorBody {
		return body[:maxErrorBody] + "..."
	}
	return body
}
