package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/raaihank/report-sentinel/internal/config"
)

const anthropicVersion = "bedrock-2023-05-31"

type claudeMessageRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// bedrockInvoker is the part of the Bedrock runtime client we use
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock calls an Anthropic Claude model hosted on AWS Bedrock
type Bedrock struct {
	client      bedrockInvoker
	modelID     string
	maxTokens   int
	temperature float64
}

// NewBedrock loads AWS credentials from the default chain. SDK retries are
// disabled.
func NewBedrock(ctx context.Context, cfg config.RewriteConfig) (*Bedrock, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("bedrock model ID is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Bedrock.Region),
		awsconfig.WithRetryMaxAttempts(1),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return newBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrockWithClient(client bedrockInvoker, cfg config.RewriteConfig) *Bedrock {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Bedrock{
		client:      client,
		modelID:     cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *Bedrock) Name() string { return "bedrock/" + p.modelID }

func (p *Bedrock) Rewrite(ctx context.Context, redactedText string, in Instructions) (string, error) {
	payload, err := json.Marshal(claudeMessageRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        p.maxTokens,
		Temperature:      p.temperature,
		System:           in.System,
		Messages: []claudeMessage{
			{Role: "user", Content: redactedText},
		},
	})
	if err != nil {
		return "", fmt.Errorf("serialize claude request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("invoke claude model: %w", err)
	}

	var response claudeMessageResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("unmarshal bedrock response: %w", err)
	}

	var b strings.Builder
	for _, c := range response.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}

	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
