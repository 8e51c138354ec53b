package ports

import (
	"context"

	"github.com/mkravets/consultrag/internal/core/domain"
)

// ConsultationService is the inbound contract for answering consultation
// questions from the configured document collections.
type ConsultationService interface {
	Answer(ctx context.Context, query domain.Query) (*domain.Answer, error)
	// AnswerStream emits token events, then a sources/actions event, then a
	// terminal done event. The emit callback returning an error cancels the
	// stream.
	AnswerStream(ctx context.Context, query domain.Query, emit func(domain.StreamEvent) error) error
}
