package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotRelevant        = errors.New("query not relevant to configured domains")
	ErrTemporary          = errors.New("temporary failure")
	ErrGenerationTimeout  = errors.New("answer generation timed out")
	ErrCollectionNotFound = errors.New("collection not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
