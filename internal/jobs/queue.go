// Package jobs moves booking follow-up work, currently the tabular
// export, off the request path via a queue.
package jobs

import "context"

// Message is one queued payload.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue abstracts the work queue so local development can run without SQS.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
