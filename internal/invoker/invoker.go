// Package invoker is the single point of contact with the Bedrock runtime.
package invoker

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/seongmin-ku/bedrockchat/internal/adapter"
	"github.com/seongmin-ku/bedrockchat/internal/conversation"
	"github.com/seongmin-ku/bedrockchat/internal/logger"
)

const contentTypeJSON = "application/json"

// BedrockAPI is the subset of the Bedrock runtime client the invoker uses;
// it is easy to fake in tests.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Invoker sends adapted conversations to the backend and returns the
// generated text. It performs no retries; retry policy belongs to the
// caller or the surrounding infrastructure.
type Invoker struct {
	client BedrockAPI
}

// New returns an Invoker on top of client. The client is shared across
// concurrent requests and must not be mutated per call.
func New(client BedrockAPI) *Invoker {
	return &Invoker{client: client}
}

// Invoke builds the family-specific payload, calls the model and parses the
// reply. Unknown model families fail before any network call.
func (i *Invoker) Invoke(ctx context.Context, turns []conversation.Turn, modelID string, maxTokens int, temperature float64) (string, error) {
	payload, err := adapter.BuildPayload(turns, modelID, maxTokens, temperature)
	if err != nil {
		return "", err
	}

	logger.L.Debug("calling bedrock model", "model_id", modelID, "turns", len(turns))

	out, err := i.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        payload,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	if err != nil {
		return "", classify(err)
	}

	return adapter.ParseResponse(modelID, out.Body)
}

// classify maps a Bedrock API error onto the backend error taxonomy.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &BackendError{Code: "UnknownError", Message: err.Error()}
	}
	code := apiErr.ErrorCode()
	msg := apiErr.ErrorMessage()
	logger.L.Error("bedrock call failed", "code", code, "error", msg)
	switch code {
	case "AccessDeniedException":
		return &AccessDeniedError{Code: code, Message: msg}
	case "ThrottlingException":
		return &ThrottledError{Code: code, Message: msg}
	case "ValidationException":
		return &ValidationError{Code: code, Message: msg}
	default:
		return &BackendError{Code: code, Message: msg}
	}
}
