package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/pkg/anthropic"
)

// systemPreamble is the fixed system prompt shared by every intelligence
// stage. It sits behind a cache breakpoint so repeat runs hit a warm cache.
const systemPreamble = `You are a research assistant inside an automated pipeline. ` +
	`You always respond with exactly one JSON object matching the schema you are given. ` +
	`No prose, no markdown fences, no repetition of the object.`

// completer adapts the Anthropic client to the stage Completer contract for
// one model. The schema hint is appended to the user prompt, not the cached
// system block, so different stages share the same cache entry.
type completer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func newCompleter(client anthropic.Client, model string, maxTokens int64) *completer {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &completer{client: client, model: model, maxTokens: maxTokens}
}

func (c *completer) Complete(ctx context.Context, prompt, schemaHint string) (string, model.TokenUsage, error) {
	content := prompt
	if schemaHint != "" {
		content += "\n\nRespond with one JSON object of this shape:\n" + schemaHint
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPreamble),
		Messages: []anthropic.Message{
			{Role: "user", Content: content},
		},
	})
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "pipeline: intelligence call")
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return resp.Text(), usage, nil
}
