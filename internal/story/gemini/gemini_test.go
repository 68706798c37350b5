package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"storyvoice/internal/domain/story"
)

type fakeModels struct {
	prompts []string
	models  []string
	configs []*genai.GenerateContentConfig
	resp    *genai.GenerateContentResponse
	err     error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.models = append(f.models, model)
	f.configs = append(f.configs, config)
	for _, c := range contents {
		for _, p := range c.Parts {
			f.prompts = append(f.prompts, p.Text)
		}
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestSplitStory(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantStory string
		wantImage string
	}{
		{
			name:      "with image line",
			text:      "You hear groans behind the door. What do you do?\nIMAGE: a dark corridor lit by a flickering sign",
			wantStory: "You hear groans behind the door. What do you do?",
			wantImage: "a dark corridor lit by a flickering sign",
		},
		{
			name:      "missing image line",
			text:      "  The roof is quiet.  ",
			wantStory: "The roof is quiet.",
			wantImage: DefaultImagePrompt,
		},
		{
			name:      "blank image line",
			text:      "Silence.\nIMAGE:   ",
			wantStory: "Silence.",
			wantImage: DefaultImagePrompt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStory, gotImage := SplitStory(tt.text, DefaultSeparator)
			if gotStory != tt.wantStory {
				t.Errorf("story = %q, want %q", gotStory, tt.wantStory)
			}
			if gotImage != tt.wantImage {
				t.Errorf("image = %q, want %q", gotImage, tt.wantImage)
			}
		})
	}
}

func TestNextTurnOpening(t *testing.T) {
	fake := &fakeModels{resp: textResponse("You wake up in a mall.\nIMAGE: an abandoned mall")}
	c := newClient(fake, Config{})

	turn, err := c.NextTurn(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("NextTurn() error = %v", err)
	}
	if turn.Story != "You wake up in a mall." || turn.ImagePrompt != "an abandoned mall" {
		t.Errorf("turn = %+v", turn)
	}
	if fake.models[0] != DefaultStoryModel {
		t.Errorf("model = %q, want %q", fake.models[0], DefaultStoryModel)
	}
	if !strings.Contains(fake.prompts[0], "opening scene") {
		t.Errorf("opening prompt not used: %q", fake.prompts[0])
	}
}

func TestNextTurnContinuesHistory(t *testing.T) {
	fake := &fakeModels{resp: textResponse("The door holds.\nSCENE: a barricaded door")}
	c := newClient(fake, Config{Separator: "SCENE:"})

	history := []story.GameMessage{
		{Role: story.RoleAssistant, Content: "Zombies at the gate."},
		{Role: story.RoleUser, Content: "I barricade the door"},
	}
	turn, err := c.NextTurn(context.Background(), history, "I barricade the door")
	if err != nil {
		t.Fatalf("NextTurn() error = %v", err)
	}
	if turn.ImagePrompt != "a barricaded door" {
		t.Errorf("ImagePrompt = %q", turn.ImagePrompt)
	}

	prompt := fake.prompts[0]
	for _, want := range []string{
		"assistant: Zombies at the gate.\nuser: I barricade the door",
		`latest action was: "I barricade the door"`,
		`EXACTLY with "SCENE:"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNextTurnErrors(t *testing.T) {
	c := newClient(&fakeModels{err: errors.New("quota")}, Config{})
	if _, err := c.NextTurn(context.Background(), nil, ""); err == nil || !strings.Contains(err.Error(), "quota") {
		t.Errorf("NextTurn() error = %v, want wrapped quota error", err)
	}

	c = newClient(&fakeModels{resp: &genai.GenerateContentResponse{}}, Config{})
	if _, err := c.NextTurn(context.Background(), nil, ""); err == nil {
		t.Error("NextTurn() accepted an empty response")
	}
}

func TestGenerateImage(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here you go"},
				{InlineData: &genai.Blob{Data: []byte("\x89PNG")}},
			}},
		}},
	}}
	c := newClient(fake, Config{ImageModel: "image-model"})

	img, err := c.GenerateImage(context.Background(), "a rooftop at dusk")
	if err != nil {
		t.Fatalf("GenerateImage() error = %v", err)
	}
	if string(img.Data) != "\x89PNG" || img.MimeType != "image/png" {
		t.Errorf("image = %+v", img)
	}
	if fake.models[0] != "image-model" {
		t.Errorf("model = %q", fake.models[0])
	}
	if cfg := fake.configs[0]; cfg == nil || len(cfg.ResponseModalities) != 1 || cfg.ResponseModalities[0] != "IMAGE" {
		t.Errorf("config = %+v, want IMAGE modality", cfg)
	}
	if !strings.Contains(fake.prompts[0], "a rooftop at dusk") {
		t.Errorf("prompt = %q", fake.prompts[0])
	}
}

func TestGenerateImageMissing(t *testing.T) {
	c := newClient(&fakeModels{resp: textResponse("I cannot draw that")}, Config{})
	if _, err := c.GenerateImage(context.Background(), "x"); !errors.Is(err, ErrNoImage) {
		t.Errorf("GenerateImage() error = %v, want ErrNoImage", err)
	}
}
