package anthropic

import (
	"context"

	"github.com/rotisserie/eris"
)

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint set to a 1-hour TTL. The structuring prompt is identical across
// every document in a session, so one warm request makes the rest cheap.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "1h",
			},
		},
	}
}

// PrimerRequest sends a single message to warm the prompt cache before a
// session fans out over its documents. The request should include system
// blocks built with BuildCachedSystemBlocks. The response can be discarded.
func PrimerRequest(ctx context.Context, client Client, req MessageRequest) (*MessageResponse, error) {
	resp, err := client.CreateMessage(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: primer request")
	}
	return resp, nil
}
