package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"storyvoice/internal/domain/story"
)

const (
	DefaultStoryModel = "gemini-2.0-flash-lite-001"
	DefaultImageModel = "gemini-2.5-flash-image-preview"
)

// ErrNoImage is returned when the image model answers without inline data.
var ErrNoImage = errors.New("no image in response")

type Config struct {
	APIKey     string
	StoryModel string
	ImageModel string
	Separator  string
}

// contentGenerator is the slice of genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client is the story and image service backed by Gemini.
type Client struct {
	models contentGenerator
	config Config
}

// Image is one generated illustration.
type Image struct {
	Data     []byte
	MimeType string
}

func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set GEMINI_API_KEY or gemini.api_key)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newClient(client.Models, config), nil
}

func newClient(models contentGenerator, config Config) *Client {
	if config.StoryModel == "" {
		config.StoryModel = DefaultStoryModel
	}
	if config.ImageModel == "" {
		config.ImageModel = DefaultImageModel
	}
	if config.Separator == "" {
		config.Separator = DefaultSeparator
	}
	return &Client{models: models, config: config}
}

// NextTurn asks for the opening scene when history is empty, otherwise for
// the consequences of action.
func (c *Client) NextTurn(ctx context.Context, history []story.GameMessage, action string) (*story.Turn, error) {
	prompt := initialPrompt(c.config.Separator)
	if len(history) > 0 {
		prompt = continuePrompt(c.config.Separator, story.History(history), action)
	}

	resp, err := c.models.GenerateContent(ctx, c.config.StoryModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate story: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("failed to generate story: empty response")
	}

	storyText, imageText := SplitStory(text, c.config.Separator)
	logrus.WithFields(logrus.Fields{
		"model":        c.config.StoryModel,
		"story_chars":  len(storyText),
		"image_prompt": imageText,
	}).Debug("Generated story turn")

	return &story.Turn{Story: storyText, ImagePrompt: imageText}, nil
}

// SplitStory separates the narration from the trailing image description.
// A missing or blank description falls back to DefaultImagePrompt.
func SplitStory(text, separator string) (string, string) {
	storyText, imageText, found := strings.Cut(text, separator)
	storyText = strings.TrimSpace(storyText)
	imageText = strings.TrimSpace(imageText)
	if !found || imageText == "" {
		imageText = DefaultImagePrompt
	}
	return storyText, imageText
}

// GenerateImage renders a pixel art illustration for description.
func (c *Client) GenerateImage(ctx context.Context, description string) (*Image, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}

	resp, err := c.models.GenerateContent(ctx, c.config.ImageModel, genai.Text(imagePrompt(description)), config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			logrus.WithFields(logrus.Fields{
				"model":     c.config.ImageModel,
				"mime_type": mimeType,
				"bytes":     len(part.InlineData.Data),
			}).Debug("Generated image")
			return &Image{Data: part.InlineData.Data, MimeType: mimeType}, nil
		}
	}

	return nil, ErrNoImage
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" && !part.Thought {
				b.WriteString(part.Text)
			}
		}
		break
	}
	return b.String()
}
