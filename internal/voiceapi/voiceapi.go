package voiceapi

import (
	"context"
	"io"

	"github.com/skazkalab/fairytale-engine/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=voiceapi.go -destination=mocks/mock.go

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	AccessToken() string
}

// UploadVoiceInput is a recorded voice sample plus its metadata, sent
// as one multipart form.
type UploadVoiceInput struct {
	SampleName string
	Sample     io.Reader
	Role       string
	Name       string
	Gender     string
	Age        string
}

// Client manages the premium voice-cloning library.
type Client interface {
	UploadVoice(ctx context.Context, in UploadVoiceInput) (*domain.Voice, error)
	ListVoices(ctx context.Context) ([]domain.Voice, error)
	DeleteVoice(ctx context.Context, id string) error
}
