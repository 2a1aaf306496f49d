// Package adapter translates between the internal conversation
// representation and the wire formats of the supported model families.
// Supporting a new family means adding a branch to Resolve, BuildPayload
// and ParseResponse; nothing outside this package knows about model ids
// beyond passing them through.
package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
)

// Family is a class of models sharing one request/response shape.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyAnthropic
	FamilyTitan
)

const anthropicVersion = "bedrock-2023-05-31"

// UnsupportedModelError is returned when the model id matches no known
// family. It fires before any backend call is attempted.
type UnsupportedModelError struct {
	ModelID string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model: %s", e.ModelID)
}

// MalformedResponseError indicates the backend returned a payload missing
// the field path the family contract promises.
type MalformedResponseError struct {
	ModelID string
	Reason  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from model %s: %s", e.ModelID, e.Reason)
}

// Resolve maps a model id onto a Family via substring match, once, at the
// adapter boundary. Unknown ids fail with *UnsupportedModelError.
func Resolve(modelID string) (Family, error) {
	switch {
	case strings.Contains(modelID, "anthropic"):
		return FamilyAnthropic, nil
	case strings.Contains(modelID, "amazon.titan"):
		return FamilyTitan, nil
	default:
		return FamilyUnknown, &UnsupportedModelError{ModelID: modelID}
	}
}

type anthropicRequest struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	Messages         []conversation.Turn `json:"messages"`
	Temperature      float64             `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type titanGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

type titanRequest struct {
	InputText            string                `json:"inputText"`
	TextGenerationConfig titanGenerationConfig `json:"textGenerationConfig"`
}

type titanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

// BuildPayload serializes the conversation into the request body for the
// family resolved from modelID.
func BuildPayload(turns []conversation.Turn, modelID string, maxTokens int, temperature float64) ([]byte, error) {
	family, err := Resolve(modelID)
	if err != nil {
		return nil, err
	}

	switch family {
	case FamilyAnthropic:
		return json.Marshal(anthropicRequest{
			AnthropicVersion: anthropicVersion,
			MaxTokens:        maxTokens,
			Messages:         turns,
			Temperature:      temperature,
		})
	default: // FamilyTitan
		return json.Marshal(titanRequest{
			InputText: titanPrompt(turns),
			TextGenerationConfig: titanGenerationConfig{
				MaxTokenCount: maxTokens,
				Temperature:   temperature,
				TopP:          0.9,
			},
		})
	}
}

// ParseResponse extracts the generated text from a raw response body
// according to the family resolved from modelID.
func ParseResponse(modelID string, raw []byte) (string, error) {
	family, err := Resolve(modelID)
	if err != nil {
		return "", err
	}

	switch family {
	case FamilyAnthropic:
		var resp anthropicResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", &MalformedResponseError{ModelID: modelID, Reason: err.Error()}
		}
		if len(resp.Content) == 0 {
			return "", &MalformedResponseError{ModelID: modelID, Reason: "missing content[0].text"}
		}
		return resp.Content[0].Text, nil
	default: // FamilyTitan
		var resp titanResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", &MalformedResponseError{ModelID: modelID, Reason: err.Error()}
		}
		if len(resp.Results) == 0 {
			return "", &MalformedResponseError{ModelID: modelID, Reason: "missing results[0].outputText"}
		}
		return resp.Results[0].OutputText, nil
	}
}

// titanPrompt flattens the conversation into the single prompt string Titan
// models expect, ending with a cue for the assistant's next turn.
func titanPrompt(turns []conversation.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			b.WriteString("User: ")
		case conversation.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}
