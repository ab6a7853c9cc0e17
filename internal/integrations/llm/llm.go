// Package llm wraps the Anthropic Message Batches API behind the small
// submit / status / results surface the batch pipeline needs.
package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Request is one classification request inside a batch job.
type Request struct {
	RecordID    string
	UserMessage string
}

type JobState string

const (
	JobInProgress JobState = "in_progress"
	JobCanceling  JobState = "canceling"
	JobEnded      JobState = "ended"
)

// JobStatus is the remote view of one batch job: its processing state
// plus per-request counts.
type JobStatus struct {
	State      JobState
	Processing int64
	Succeeded  int64
	Errored    int64
	Canceled   int64
	Expired    int64
}

// JobResult is one per-record output of an ended job. Err is non-empty
// when the individual request did not succeed.
type JobResult struct {
	RecordID string
	Text     string
	Err      string
}

type Client struct {
	api          anthropic.Client
	model        string
	maxTokens    int64
	systemPrompt string
}

func NewClient(apiKey, model, systemPrompt string, maxTokens int) *Client {
	return &Client{
		api:          anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:        model,
		maxTokens:    int64(maxTokens),
		systemPrompt: systemPrompt,
	}
}

// SubmitBatch creates one batch job from the requests and returns the
// assigned job id.
func (c *Client) SubmitBatch(ctx context.Context, reqs []Request) (string, error) {
	params := make([]anthropic.MessageBatchNewParamsRequest, 0, len(reqs))
	for _, r := range reqs {
		params = append(params, anthropic.MessageBatchNewParamsRequest{
			CustomID: r.RecordID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     anthropic.Model(c.model),
				MaxTokens: c.maxTokens,
				System: []anthropic.TextBlockParam{
					{Text: c.systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(r.UserMessage)),
				},
			},
		})
	}

	batch, err := c.api.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: params})
	if err != nil {
		log.Printf("llm batch create error requests=%d: %v", len(reqs), err)
		return "", fmt.Errorf("Anthropic batch create error: %w", err)
	}
	log.Printf("llm batch created id=%s requests=%d", batch.ID, len(reqs))
	return batch.ID, nil
}

func (c *Client) JobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	batch, err := c.api.Messages.Batches.Get(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("Anthropic batch status error: %w", err)
	}
	return JobStatus{
		State:      JobState(batch.ProcessingStatus),
		Processing: batch.RequestCounts.Processing,
		Succeeded:  batch.RequestCounts.Succeeded,
		Errored:    batch.RequestCounts.Errored,
		Canceled:   batch.RequestCounts.Canceled,
		Expired:    batch.RequestCounts.Expired,
	}, nil
}

// JobResults streams the per-request outputs of an ended job.
func (c *Client) JobResults(ctx context.Context, jobID string) ([]JobResult, error) {
	stream := c.api.Messages.Batches.ResultsStreaming(ctx, jobID)
	var out []JobResult
	for stream.Next() {
		res := stream.Current()
		switch v := res.Result.AsAny().(type) {
		case anthropic.MessageBatchSucceededResult:
			out = append(out, JobResult{RecordID: res.CustomID, Text: textContent(v.Message)})
		default:
			out = append(out, JobResult{RecordID: res.CustomID, Err: string(res.Result.Type)})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("Anthropic batch results error: %w", err)
	}
	log.Printf("llm batch results id=%s rows=%d", jobID, len(out))
	return out, nil
}

func textContent(msg anthropic.Message) string {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}
