// Package llm talks to an OpenAI-compatible chat completion endpoint and turns
// its free-form output into validated questions.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const systemPrompt = "You are a senior JEE paper setter. You write original, exam-grade questions " +
	"and always answer with a single JSON object that matches the requested schema. " +
	"Use LaTeX between $ signs for mathematics."

const analysisPrompt = "You are a JEE performance coach. Read the attempt summary and give " +
	"specific, actionable strategy in short paragraphs: where marks were lost, which chapters " +
	"to revise first and how to pace the next paper. Plain text, no JSON."

const extractPrompt = "Extract every JEE question from the attached question paper. When a second " +
	"document is attached it is the solution key: use it to fill in the correct answers, " +
	"solutions and concepts. For MCQ give correctAnswer as zero-based option indices. " +
	"Answer with one JSON object matching the schema."

// Client is a thin wrapper around the OpenAI SDK. One SDK client is kept per
// credential so rotation does not rebuild HTTP transports.
type Client struct {
	baseURL       string
	model         string
	analysisModel string
	visionModel   string

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// New creates a Client for the given endpoint and model. The same model is
// used for analysis and document reading until WithModels says otherwise.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL:       baseURL,
		model:         model,
		analysisModel: model,
		visionModel:   model,
		clients:       make(map[string]*openai.Client),
	}
}

// WithModels sets the analysis and vision models. Empty values keep the
// current ones.
func (c *Client) WithModels(analysis, vision string) *Client {
	if analysis != "" {
		c.analysisModel = analysis
	}
	if vision != "" {
		c.visionModel = vision
	}
	return c
}

// Document is a file handed to the vision model, such as a PDF or an image.
type Document struct {
	MIMEType string
	Data     []byte
}

func (d Document) dataURL() string {
	return "data:" + d.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt with apiKey and returns the text of the first choice.
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	return c.complete(ctx, apiKey, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: questionBatchFormat,
		Temperature:    0.7,
	})
}

// Analyze asks the analysis model for free-text coaching on summary.
func (c *Client) Analyze(ctx context.Context, apiKey, summary string) (string, error) {
	return c.complete(ctx, apiKey, openai.ChatCompletionRequest{
		Model: c.analysisModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summary},
		},
		Temperature: 0.4,
	})
}

// Extract sends docs to the vision model and returns its question batch as
// raw JSON text. The first document is the paper; any others are keys.
func (c *Client) Extract(ctx context.Context, apiKey string, docs []Document) (string, error) {
	parts := make([]openai.ChatMessagePart, 0, len(docs)+1)
	for _, d := range docs {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: d.dataURL(), Detail: openai.ImageURLDetailHigh},
		})
	}
	parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: extractPrompt})

	return c.complete(ctx, apiKey, openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: questionBatchFormat,
		Temperature:    0.1,
	})
}

func (c *Client) complete(ctx context.Context, apiKey string, req openai.ChatCompletionRequest) (string, error) {
	if apiKey == "" {
		return "", ErrNoCredentials
	}

	resp, err := c.clientFor(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: blank content (finish reason %s)", ErrEmptyResponse, resp.Choices[0].FinishReason)
	}
	return text, nil
}

func (c *Client) clientFor(apiKey string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if api, ok := c.clients[apiKey]; ok {
		return api
	}
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	api := openai.NewClientWithConfig(cfg)
	c.clients[apiKey] = api
	return api
}

var questionBatchFormat = &openai.ChatCompletionResponseFormat{
	Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
	JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
		Name:   "question_batch",
		Schema: &questionBatchSchema,
	},
}

// questionBatchSchema is the response schema for generated and extracted
// questions.
var questionBatchSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"questions": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"subject":    {Type: jsonschema.String, Enum: []string{"Physics", "Chemistry", "Mathematics"}},
					"chapter":    {Type: jsonschema.String},
					"type":       {Type: jsonschema.String, Enum: []string{"MCQ", "Numerical"}},
					"difficulty": {Type: jsonschema.String},
					"statement":  {Type: jsonschema.String},
					"options": {
						Type:  jsonschema.Array,
						Items: &jsonschema.Definition{Type: jsonschema.String},
					},
					"correctAnswer": {
						Type:        jsonschema.String,
						Description: "MCQ: zero-based option indices joined by commas. Numerical: the number only.",
					},
					"solution":    {Type: jsonschema.String},
					"explanation": {Type: jsonschema.String},
					"concept":     {Type: jsonschema.String},
					"markingScheme": {
						Type: jsonschema.Object,
						Properties: map[string]jsonschema.Definition{
							"positive": {Type: jsonschema.Integer},
							"negative": {Type: jsonschema.Integer},
						},
					},
				},
				Required: []string{"subject", "statement", "correctAnswer", "solution", "type"},
			},
		},
	},
	Required: []string{"questions"},
}
