package generator

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// OpenRouter 与 DeepSeek 都是 OpenAI 兼容接口，只是 BaseURL 不同。
type OpenAILLM struct {
	Model  string
	client openai.Client
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("api key missing; provide llm.api_key or LLM_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.AppTitle != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.AppTitle))
	}
	return &OpenAILLM{Model: cfg.Model, client: openai.NewClient(opts...)}, nil
}

// Complete 发送一条多模态用户消息，并要求模型以 JSON 对象作答。
func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt))
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", prompt.Task, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) params(prompt Prompt) openai.ChatCompletionNewParams {
	var jsonObject constant.JSONObject
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: jsonObject.Default(),
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: contentParts(prompt.Parts),
					},
				},
			},
		},
	}
}

// contentParts 保持各段顺序；图片以 data URI 内联。
func contentParts(parts []Part) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
						URL: p.Image.DataURI(),
					},
				},
			})
			continue
		}
		out = append(out, openai.ChatCompletionContentPartUnionParam{
			OfText: &openai.ChatCompletionContentPartTextParam{Text: p.Text},
		})
	}
	return out
}
