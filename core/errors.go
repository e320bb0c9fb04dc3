package core

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest is returned when the user id or the message is missing
	ErrBadRequest = errors.New("no user message or user ID provided")
	// ErrInvalidPrompt is returned when an image prompt is empty after trimming
	ErrInvalidPrompt = errors.New("image prompt is empty")
	// ErrImageTimeout is returned when the image API does not answer in time
	ErrImageTimeout = errors.New("image generation timed out")
)

// CompletionError is a failed call to the chat-completion API
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("chat completion (%s): %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ImageError is a failed or malformed answer of the image API.
// Status is zero when no HTTP status was received.
type ImageError struct {
	Status int
	Body   string
	Err    error
}

func (e *ImageError) Error() string {
	msg := "image generation failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ImageError) Unwrap() error { return e.Err }

// PublishError is a failed upload of a generated image
type PublishError struct {
	FileName string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing %s: %v", e.FileName, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
