package oracle

import (
	"context"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"codegen-forge/forge/internal/logging"
)

// GenAIAdapter is the default Adapter, backed by the google.golang.org/genai
// SDK, in the style of internal/embedding/genai.go client
// construction (genai.NewClient with an API-key ClientConfig) and on
// internal/perception/client_gemini.go's use of a response schema to
// constrain model output to JSON.
type GenAIAdapter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGenAIAdapter constructs a GenAIAdapter reading its API key from the
// environment variable named by apiKeyEnv.
func NewGenAIAdapter(ctx context.Context, apiKeyEnv, model string, timeout time.Duration) (*GenAIAdapter, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: environment variable %s is not set", apiKeyEnv)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("oracle: create genai client: %w", err)
	}
	return &GenAIAdapter{client: client, model: model, timeout: timeout}, nil
}

// Generate implements Adapter. It retries transient transport failures up
// to len(backoffSchedule) times with linear backoff; a schema violation
// (response that does not parse as the requested JSON shape at the
// transport layer) is surfaced immediately as ErrSchema.
func (a *GenAIAdapter) Generate(ctx context.Context, prompt string, schema Schema) (string, error) {
	timer := logging.StartTimer(logging.CategoryOracle, "GenAIAdapter.Generate")
	defer timer.Stop()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchemaFor(schema),
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var lastErr error
	for attempt := 0; attempt < len(backoffSchedule)+1; attempt++ {
		if callCtx.Err() != nil {
			return "", &ModelError{Kind: ErrTimeout, Detail: callCtx.Err().Error()}
		}

		result, err := a.client.Models.GenerateContent(callCtx, a.model, contents, cfg)
		if err != nil {
			lastErr = err
			logging.OracleDebug("genai call failed (attempt %d): %v", attempt, err)
			if sleepErr := sleepBackoff(callCtx, attempt); sleepErr != nil {
				return "", &ModelError{Kind: ErrTimeout, Detail: sleepErr.Error()}
			}
			continue
		}

		text := result.Text()
		if text == "" {
			return "", &ModelError{Kind: ErrSchema, Detail: "empty response body"}
		}
		return text, nil
	}
	return "", &ModelError{Kind: ErrTransport, Detail: fmt.Sprintf("exhausted retries: %v", lastErr)}
}

// responseSchemaFor returns the JSON-schema constraint for one of the
// fixed schema names in the Each is deliberately permissive at the
// leaf level (the oracle package only needs well-formed JSON; structural
// validation of the decoded payload happens in the calling package —
// catalog, dag, merge — which knows the Go type it is decoding into).
func responseSchemaFor(schema Schema) *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString}
	strArray := &genai.Schema{Type: genai.TypeArray, Items: str}

	switch schema {
	case SchemaDecomposition:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"atoms": {Type: genai.TypeArray, Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":             str,
						"kind":           str,
						"layer":          str,
						"dependencies":   strArray,
						"description":    str,
						"namespace":      str,
						"expected_types": strArray,
					},
					Required: []string{"id", "kind", "layer", "description"},
				}},
			},
			Required: []string{"atoms"},
		}
	case SchemaContracts:
		method := &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":        str,
				"params":      strArray,
				"return_type": str,
			},
			Required: []string{"name"},
		}
		property := &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": str,
				"type": str,
			},
			Required: []string{"name", "type"},
		}
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"contracts": {Type: genai.TypeArray, Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"kind":       str,
						"name":       str,
						"namespace":  str,
						"members":    strArray,
						"methods":    {Type: genai.TypeArray, Items: method},
						"properties": {Type: genai.TypeArray, Items: property},
						"is_sealed":  {Type: genai.TypeBoolean},
					},
					Required: []string{"kind", "name", "namespace"},
				}},
			},
			Required: []string{"contracts"},
		}
	case SchemaSubtasks:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"subtasks": {Type: genai.TypeArray, Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":           str,
						"description":  str,
						"dependencies": strArray,
					},
					Required: []string{"id", "description"},
				}},
			},
			Required: []string{"subtasks"},
		}
	case SchemaFragment:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"fragment": str,
			},
			Required: []string{"fragment"},
		}
	case SchemaSummary, SchemaArchitectureSummary:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary": str,
			},
			Required: []string{"summary"},
		}
	case SchemaPackageVersions:
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"packages": {Type: genai.TypeArray, Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":    str,
						"version": str,
					},
					Required: []string{"name", "version"},
				}},
			},
			Required: []string{"packages"},
		}
	default:
		return &genai.Schema{Type: genai.TypeObject}
	}
}

// Close releases the underlying client's resources, if any.
func (a *GenAIAdapter) Close() error {
	return nil
}
