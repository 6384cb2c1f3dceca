package audit

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"onboarding-board/domain"
)

type queueAPI interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Outbox publishes each committed decision to an Azure queue so provisioning
// and payroll jobs can pick it up.
type Outbox struct {
	queue queueAPI
}

// NewOutbox opens the decisions queue from a storage connection string.
func NewOutbox(connStr, queue string) (*Outbox, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Minute,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, &opts)
	if err != nil {
		return nil, err
	}
	return &Outbox{queue: q}, nil
}

func (o *Outbox) RecordDecision(ctx context.Context, d domain.Decision) error {
	data, err := sonic.Marshal(d)
	if err != nil {
		return err
	}
	_, err = o.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Recorder is the subset of board.DecisionRecorder the fan-out needs.
type Recorder interface {
	RecordDecision(ctx context.Context, d domain.Decision) error
}

// Fanout records a decision with every recorder and joins their errors.
type Fanout []Recorder

func (f Fanout) RecordDecision(ctx context.Context, d domain.Decision) error {
	var errs []error
	for _, r := range f {
		if err := r.RecordDecision(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
