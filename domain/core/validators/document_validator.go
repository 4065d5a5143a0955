package validators

import (
	"errors"
	"fmt"

	"finsync/domain/core/aggregates"
	pkgerrors "finsync/pkg/errors"
)

// DocumentValidator checks pushed documents before anything is stored
type DocumentValidator struct {
	maxBytes int64
}

// NewDocumentValidator creates a validator. maxBytes <= 0 disables the size check.
func NewDocumentValidator(maxBytes int64) *DocumentValidator {
	return &DocumentValidator{maxBytes: maxBytes}
}

// Validate returns the document as an object together with its encoding
func (v *DocumentValidator) Validate(state any) (aggregates.Document, []byte, error) {
	if state == nil {
		return nil, nil, pkgerrors.NewValidationError("state is required").
			WithCode(pkgerrors.CodeInvalidDocument)
	}

	doc, err := aggregates.DocumentFromValue(state)
	if err != nil {
		return nil, nil, pkgerrors.NewValidationError("state must be a JSON object").
			WithCode(pkgerrors.CodeInvalidDocument).
			WithCause(err)
	}

	raw, err := doc.Encode()
	if err != nil {
		return nil, nil, pkgerrors.NewValidationError("state cannot be encoded").
			WithCode(pkgerrors.CodeUnencodableDocument).
			WithCause(err)
	}

	if v.maxBytes > 0 && int64(len(raw)) > v.maxBytes {
		return nil, nil, pkgerrors.NewValidationError(fmt.Sprintf("state exceeds %d bytes", v.maxBytes)).
			WithCode(pkgerrors.CodeInvalidDocument)
	}

	return doc, raw, nil
}

// IsUnencodable reports whether err came from a document that failed to encode
func IsUnencodable(err error) bool {
	if errors.Is(err, aggregates.ErrUnencodableDocument) {
		return true
	}
	appErr := pkgerrors.GetAppError(err)
	return appErr != nil && appErr.Code == pkgerrors.CodeUnencodableDocument
}
