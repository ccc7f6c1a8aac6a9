package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Advisor asks the model to choose among numbered candidates.
type Advisor struct {
	client *Client
}

// NewAdvisor wraps client for candidate selection.
func NewAdvisor(client *Client) *Advisor {
	return &Advisor{client: client}
}

// Choose returns the model's pick as text. A well-formed {"choice": n}
// reply is returned as the bare number; anything else is passed through so
// the caller can look for an ordinal in it.
func (a *Advisor) Choose(ctx context.Context, prompt string, options []string) (string, error) {
	if a == nil || a.client == nil {
		return "", fmt.Errorf("llm advisor: client not configured")
	}
	if len(options) == 0 {
		return "", fmt.Errorf("llm advisor: no options")
	}
	content, err := a.client.CompleteJSON(ctx, AdvisorSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	var reply struct {
		Choice json.Number `json:"choice"`
	}
	if err := DecodeJSON(content, &reply); err == nil && reply.Choice != "" {
		if n, err := strconv.Atoi(string(reply.Choice)); err == nil {
			return strconv.Itoa(n), nil
		}
	}
	return strings.TrimSpace(content), nil
}
