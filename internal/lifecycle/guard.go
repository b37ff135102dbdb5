// Package lifecycle implements the transition guard for catalogue resource
// envelopes: onboarding verification, activation, suspension, auditing and
// the deletion guards. Every transition appends exactly one audit ledger
// entry and is rejected outright on a published public mirror.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/auth"
	"github.com/piwi3910/catweave/internal/ledger"
	"github.com/piwi3910/catweave/internal/models"
	"github.com/piwi3910/catweave/internal/storage"
)

// Sentinel errors for rejected transitions. All of them are user-facing
// validation failures, distinct from not-found and transport errors.
var (
	// ErrNotPending is returned when verify is called on an envelope
	// whose status is not in the pending family.
	ErrNotPending = errors.New("resource is not pending review")

	// ErrUnknownVerdict is returned when verify is called with a status
	// outside the approved/rejected families.
	ErrUnknownVerdict = errors.New("verification status is neither approval nor rejection")

	// ErrCatalogueSuspended is returned when unsuspending a resource
	// whose owning catalogue is suspended.
	ErrCatalogueSuspended = errors.New("owning catalogue is suspended")

	// ErrProviderSuspended is returned when unsuspending a resource
	// whose owning provider is suspended.
	ErrProviderSuspended = errors.New("owning provider is suspended")

	// ErrDeletePending is returned when deleting a resource under review.
	ErrDeletePending = errors.New("resource under review cannot be deleted")

	// ErrDeletePublished is returned when deleting a published resource;
	// it must be retired via unpublish instead.
	ErrDeletePublished = errors.New("published resource must be retired via unpublish, not deleted")

	// ErrInvalidAuditAction is returned when audit is called with an
	// action other than valid/invalid.
	ErrInvalidAuditAction = errors.New("audit action must be valid or invalid")
)

// Validator checks a candidate envelope's outward references before any
// create or update is accepted. Implemented by refcheck.Validator.
type Validator interface {
	Validate(ctx context.Context, env *models.Envelope) error
}

// Registry registers a persistent identifier for a published public
// mirror. Implemented by pid.Client.
type Registry interface {
	Register(ctx context.Context, pid, publicID string) error
}

// Guard applies lifecycle transitions to envelopes. All mutations of an
// envelope's status, activation, suspension and ledger go through it; the
// underlying store's last-write-wins semantics are relied upon for
// concurrent transitions on the same envelope.
type Guard struct {
	store     storage.Store
	validator Validator
	registry  Registry
	logger    *zap.Logger
}

// NewGuard creates a transition guard.
func NewGuard(store storage.Store, validator Validator, logger *zap.Logger) (*Guard, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Guard{store: store, validator: validator, logger: logger}, nil
}

// SetRegistry attaches a persistent-identifier registry. When set, the
// mirror's identifier is registered at publish time; registry failures
// are logged and never block the publish.
func (g *Guard) SetRegistry(r Registry) {
	g.registry = r
}

// actor resolves the acting user from the context.
// Returns ledger.ErrNoActor when the request carries no identity.
func actor(ctx context.Context) (ledger.Actor, error) {
	a, ok := auth.ActorFromContext(ctx)
	if !ok {
		return ledger.Actor{}, ledger.ErrNoActor
	}
	return a, nil
}

// actorOrSystem resolves the acting user, falling back to the system
// sentinel for system-triggered flows with no authenticated actor.
func actorOrSystem(ctx context.Context) ledger.Actor {
	if a, ok := auth.ActorFromContext(ctx); ok {
		return a
	}
	return ledger.SystemActor
}

// fetchCanonical loads an envelope and rejects the operation when the
// envelope is a published public mirror. Mirrors are not directly
// transitionable; only the canonical envelope is.
func (g *Guard) fetchCanonical(ctx context.Context, kind models.Kind, id string) (*models.Envelope, error) {
	env, err := g.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if env.Metadata.Published {
		return nil, fmt.Errorf("%w: %s %s", models.ErrPublishedImmutable, kind, id)
	}
	return env, nil
}

// Register creates a pending envelope around a payload. The reference
// validator runs synchronously before the envelope is accepted; a leaked
// cross-catalogue reference rejects the whole registration.
func (g *Guard) Register(ctx context.Context, kind models.Kind, payload models.Identified) (*models.Envelope, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	env, err := models.NewEnvelope(kind, payload)
	if err != nil {
		return nil, err
	}
	env.Status = models.StatusPendingResource
	env.Active = false

	if err := env.ValidateIdentifiers(); err != nil {
		return nil, err
	}
	if err := g.validator.Validate(ctx, env); err != nil {
		return nil, err
	}

	entry, err := ledger.NewEntry(a, ledger.TypeOnboard, ledger.ActionRegistered, "")
	if err != nil {
		return nil, err
	}
	env.AppendEntry(entry)

	now := time.Now().UTC()
	env.Metadata.RegisteredBy = a.Email
	env.Metadata.RegisteredAt = now
	env.Metadata.ModifiedBy = a.Email
	env.Metadata.ModifiedAt = now

	if err := g.store.Create(ctx, env); err != nil {
		return nil, err
	}

	g.logger.Info("resource registered",
		zap.String("kind", string(kind)),
		zap.String("id", env.ID),
		zap.String("catalogue", env.CatalogueID))

	return env, nil
}

// Update replaces an envelope's payload after re-running the reference
// validator, appending an UPDATE entry. Rejected on public mirrors.
func (g *Guard) Update(ctx context.Context, kind models.Kind, id string, payload models.Identified) (*models.Envelope, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	candidate, err := models.NewEnvelope(kind, payload)
	if err != nil {
		return nil, err
	}
	env.Payload = candidate.Payload
	env.CatalogueID = candidate.CatalogueID

	if err := env.ValidateIdentifiers(); err != nil {
		return nil, err
	}
	if err := g.validator.Validate(ctx, env); err != nil {
		return nil, err
	}

	entry, err := ledger.NewEntry(a, ledger.TypeUpdate, ledger.ActionUpdated, "")
	if err != nil {
		return nil, err
	}
	env.AppendEntry(entry)
	env.Metadata.ModifiedBy = a.Email
	env.Metadata.ModifiedAt = time.Now().UTC()

	if err := g.store.Update(ctx, env); err != nil {
		return nil, err
	}

	return env, nil
}

// Verify settles an envelope's review: settable only from a pending status,
// it sets the target status and activation and appends an ONBOARD entry
// with an approval or rejection action derived from the target status.
// Status values form an open vocabulary; the guard interprets only the
// approved/rejected families.
func (g *Guard) Verify(ctx context.Context, kind models.Kind, id, status string, active bool) (*models.Envelope, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(env.Status, "pending") {
		return nil, fmt.Errorf("%w: %s %s has status %q", ErrNotPending, kind, id, env.Status)
	}

	var action ledger.ActionType
	switch {
	case strings.Contains(status, "approved"):
		action = ledger.ActionApproved
	case strings.Contains(status, "rejected"):
		action = ledger.ActionRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerdict, status)
	}

	entry, err := ledger.NewEntry(a, ledger.TypeOnboard, action, "")
	if err != nil {
		return nil, err
	}

	env.Status = status
	env.Active = active
	env.AppendEntry(entry)
	env.Metadata.ModifiedBy = a.Email
	env.Metadata.ModifiedAt = time.Now().UTC()

	if err := g.store.Update(ctx, env); err != nil {
		return nil, err
	}

	g.logger.Info("resource verified",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("status", status),
		zap.Bool("active", active))

	return env, nil
}

// Publish toggles an envelope's activation flag, appending an
// UPDATE/activated or UPDATE/deactivated entry. A system-triggered publish
// with no authenticated actor uses the system sentinel rather than failing.
func (g *Guard) Publish(ctx context.Context, kind models.Kind, id string, active bool) (*models.Envelope, error) {
	a := actorOrSystem(ctx)

	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	action := ledger.ActionDeactivated
	if active {
		action = ledger.ActionActivated
	}

	entry, err := ledger.NewEntry(a, ledger.TypeUpdate, action, "")
	if err != nil {
		return nil, err
	}

	env.Active = active
	env.AppendEntry(entry)
	env.Metadata.ModifiedBy = a.Email
	env.Metadata.ModifiedAt = time.Now().UTC()

	if err := g.store.Update(ctx, env); err != nil {
		return nil, err
	}

	return env, nil
}

// Suspend sets or clears an envelope's suspension flag.
//
// Unsuspension cascades a single level up the ownership hierarchy: it is
// rejected while the owning catalogue is suspended and, for non-provider
// resources, while the owning provider is suspended. Deeper ancestors are
// not consulted.
func (g *Guard) Suspend(ctx context.Context, kind models.Kind, id string, suspended bool) (*models.Envelope, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if !suspended {
		if err := g.checkUnsuspendAllowed(ctx, env); err != nil {
			return nil, err
		}
	}

	action := ledger.ActionUnsuspended
	if suspended {
		action = ledger.ActionSuspended
	}

	entry, err := ledger.NewEntry(a, ledger.TypeUpdate, action, "")
	if err != nil {
		return nil, err
	}

	env.Suspended = suspended
	env.AppendEntry(entry)
	env.Metadata.ModifiedBy = a.Email
	env.Metadata.ModifiedAt = time.Now().UTC()

	if err := g.store.Update(ctx, env); err != nil {
		return nil, err
	}

	g.logger.Info("resource suspension changed",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.Bool("suspended", suspended))

	return env, nil
}

// checkUnsuspendAllowed enforces the cascading suspension rules for an
// unsuspend request.
func (g *Guard) checkUnsuspendAllowed(ctx context.Context, env *models.Envelope) error {
	if env.Kind == models.KindCatalogue {
		return nil
	}

	if env.CatalogueID != "" {
		cat, err := g.store.Get(ctx, models.KindCatalogue, env.CatalogueID)
		if err == nil && cat.Suspended {
			return fmt.Errorf("%w: %s", ErrCatalogueSuspended, env.CatalogueID)
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to resolve owning catalogue: %w", err)
		}
	}

	if env.Kind == models.KindProvider {
		return nil
	}

	providerID, err := owningProvider(env)
	if err != nil {
		return err
	}
	if providerID == "" {
		return nil
	}

	prov, err := g.store.Get(ctx, models.KindProvider, providerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to resolve owning provider: %w", err)
	}
	if prov.Suspended {
		return fmt.Errorf("%w: %s", ErrProviderSuspended, providerID)
	}

	return nil
}

// owningProvider extracts the immediate owning provider of a payload, or
// the empty string for kinds without one.
func owningProvider(env *models.Envelope) (string, error) {
	payload, err := models.DecodePayload(env.Kind, env.Payload)
	if err != nil {
		return "", err
	}

	switch p := payload.(type) {
	case *models.Service:
		return p.ResourceOrganisation, nil
	case *models.TrainingResource:
		return p.ResourceOrganisation, nil
	case *models.InteroperabilityRecord:
		return p.ProviderID, nil
	default:
		return "", nil
	}
}

// Audit records an auditor's verdict. It appends an AUDIT entry and never
// touches status or activation; the verdict surfaces only through the
// derived audit state.
func (g *Guard) Audit(ctx context.Context, kind models.Kind, id, comment string, action ledger.ActionType) (*models.Envelope, error) {
	a, err := actor(ctx)
	if err != nil {
		return nil, err
	}

	if action != ledger.ActionValid && action != ledger.ActionInvalid {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAuditAction, action)
	}

	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	entry, err := ledger.NewEntry(a, ledger.TypeAudit, action, comment)
	if err != nil {
		return nil, err
	}
	env.AppendEntry(entry)

	if err := g.store.Update(ctx, env); err != nil {
		return nil, err
	}

	g.logger.Info("resource audited",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("verdict", string(action)),
		zap.String("audit_state", string(env.AuditState())))

	return env, nil
}

// Delete removes an envelope. A resource under review cannot be deleted,
// and a published resource must be retired via unpublish first.
func (g *Guard) Delete(ctx context.Context, kind models.Kind, id string) error {
	env, err := g.store.Get(ctx, kind, id)
	if err != nil {
		return err
	}

	if strings.Contains(env.Status, "pending") {
		return fmt.Errorf("%w: %s %s", ErrDeletePending, kind, id)
	}
	if env.Metadata.Published {
		return fmt.Errorf("%w: %s %s", ErrDeletePublished, kind, id)
	}

	return g.store.Delete(ctx, kind, id)
}

// PublishMirror creates the published public mirror of a canonical
// envelope under the identifier "<catalogueID>.<canonicalID>". The
// mirror's persistent-identifier entry is rewritten to the mirror's own
// identifier. Creating an already existing mirror fails with
// storage.ErrAlreadyExists.
func (g *Guard) PublishMirror(ctx context.Context, kind models.Kind, id string) (*models.Envelope, error) {
	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	mirror := *env
	mirror.ID = env.PublicID()
	mirror.Metadata.Published = true
	mirror.AlternativeIdentifiers = append([]models.AlternativeIdentifier(nil), env.AlternativeIdentifiers...)
	mirror.LoggingInfo = append([]ledger.Entry(nil), env.LoggingInfo...)
	mirror.SetPID(mirror.ID)

	if err := mirror.ValidateIdentifiers(); err != nil {
		return nil, err
	}
	if err := g.store.Create(ctx, &mirror); err != nil {
		return nil, err
	}

	if g.registry != nil {
		if err := g.registry.Register(ctx, mirror.PID(), mirror.ID); err != nil {
			// The reconciliation sweep picks up mirrors the registry
			// missed, so publishing proceeds.
			g.logger.Warn("persistent identifier registration failed",
				zap.String("pid", mirror.PID()),
				zap.String("public_id", mirror.ID),
				zap.Error(err))
		}
	}

	g.logger.Info("public mirror created",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("public_id", mirror.ID))

	return &mirror, nil
}

// RetireMirror removes the published public mirror of a canonical
// envelope. This is the sanctioned path around the published-deletion
// guard; direct deletes of a mirror stay rejected.
func (g *Guard) RetireMirror(ctx context.Context, kind models.Kind, id string) error {
	env, err := g.fetchCanonical(ctx, kind, id)
	if err != nil {
		return err
	}

	if err := g.store.Delete(ctx, kind, env.PublicID()); err != nil {
		return err
	}

	g.logger.Info("public mirror retired",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("public_id", env.PublicID()))

	return nil
}
