// Package refcheck validates the outward references of a catalogue payload
// before it is accepted. Its job is leakage prevention: a resource may
// reference siblings inside its own catalogue by canonical identifier, and
// resources of other catalogues only through their published public
// instances.
package refcheck

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/storage"
)

// ValidationError reports a single reference that failed to resolve. Field
// names the payload field holding the offending identifier so callers can
// surface it to the submitting user.
type ValidationError struct {
	Kind   models.Kind
	ID     string
	Field  string
	RefID  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: field %q references %q: %s", e.Kind, e.ID, e.Field, e.RefID, e.Reason)
}

// Validator resolves every outward reference of an envelope against the
// store. Reference fields may point at more than one resource kind; the
// resolver tries the candidate kinds in their declared order and accepts
// the first hit, so a service and a training resource sharing an
// identifier resolve deterministically.
type Validator struct {
	store  storage.Store
	logger *zap.Logger
}

// NewValidator creates a reference validator.
func NewValidator(store storage.Store, logger *zap.Logger) (*Validator, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Validator{store: store, logger: logger}, nil
}

// Validate checks all reference fields of the envelope's payload. Every
// failing reference is reported; the returned error joins one
// *ValidationError per offending identifier.
func (v *Validator) Validate(ctx context.Context, env *models.Envelope) error {
	fields, err := models.ReferenceFields(env.Kind, env.Payload)
	if err != nil {
		return err
	}

	var errs []error
	for _, field := range fields {
		for _, refID := range field.IDs {
			if refID == "" {
				continue
			}
			if verr := v.resolve(ctx, env, field, refID); verr != nil {
				errs = append(errs, verr)
			}
		}
	}

	if len(errs) > 0 {
		v.logger.Debug("reference validation failed",
			zap.String("kind", string(env.Kind)),
			zap.String("id", env.ID),
			zap.Int("failures", len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

// resolve checks a single identifier against the field's candidate kinds.
func (v *Validator) resolve(ctx context.Context, env *models.Envelope, field models.ReferenceField, refID string) error {
	for _, kind := range field.Candidates {
		ref, err := v.store.Get(ctx, kind, refID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to resolve %s %s: %w", kind, refID, err)
		}

		// A published public instance is referenceable from anywhere.
		if ref.Metadata.Published {
			return nil
		}
		// A canonical record is referenceable only from its own catalogue.
		if ref.CatalogueID == env.CatalogueID {
			return nil
		}
		// A foreign canonical record is still referenceable through its
		// published public instance, if one exists.
		published, err := v.publishedInstanceExists(ctx, []models.Kind{kind}, refID)
		if err != nil {
			return err
		}
		if published {
			return nil
		}
		return &ValidationError{
			Kind:   env.Kind,
			ID:     env.ID,
			Field:  field.Name,
			RefID:  refID,
			Reason: fmt.Sprintf("resource belongs to catalogue %q and is not published", ref.CatalogueID),
		}
	}

	// No canonical record anywhere: the reference may still name a
	// resource known only through its published public instance.
	published, err := v.publishedInstanceExists(ctx, field.Candidates, refID)
	if err != nil {
		return err
	}
	if published {
		return nil
	}

	kinds := make([]string, len(field.Candidates))
	for i, k := range field.Candidates {
		kinds[i] = string(k)
	}
	return &ValidationError{
		Kind:   env.Kind,
		ID:     env.ID,
		Field:  field.Name,
		RefID:  refID,
		Reason: fmt.Sprintf("no resource found among kinds %v", kinds),
	}
}

// publishedInstanceExists reports whether any catalogue holds a published
// public instance of the identifier, for the given kinds in order. The
// identifier may be either a canonical id or a full mirror id.
func (v *Validator) publishedInstanceExists(ctx context.Context, kinds []models.Kind, refID string) (bool, error) {
	for _, kind := range kinds {
		_, err := v.store.FindPublished(ctx, kind, refID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to look up published instance of %s %s: %w", kind, refID, err)
		}
		return true, nil
	}
	return false, nil
}
