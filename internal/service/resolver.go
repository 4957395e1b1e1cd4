package service

import (
	"context"
	"strings"

	"waflow/internal/database"
	"waflow/internal/errors"
	"waflow/internal/models"
	"waflow/internal/privacy"
	"waflow/internal/validation"

	"github.com/sirupsen/logrus"
)

// Resolver finds or creates the contact and session an inbound event applies
// to. Races with concurrent inserts on the same (userId, phone) or
// (contactId, flowId) pair resolve through unique-constraint re-reads.
type Resolver struct {
	contacts ContactStore
	sessions SessionStore
	logger   *logrus.Logger
}

// ContactLookup carries optional contact attributes discovered alongside the
// phone number
type ContactLookup struct {
	Name            string
	AlternatePhones []string
}

func NewResolver(contacts ContactStore, sessions SessionStore, logger *logrus.Logger) *Resolver {
	return &Resolver{contacts: contacts, sessions: sessions, logger: logger}
}

// GetOrCreateContact resolves the tenant's contact for a phone number,
// creating it on first inbound and renormalizing stored state as needed
func (r *Resolver) GetOrCreateContact(ctx context.Context, userID, phone string, lookup ContactLookup) (*models.Contact, error) {
	canonical := validation.CanonicalPhone(phone)
	if canonical == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "phone number has no digits")
	}

	searchSet := []string{canonical}
	if raw := strings.TrimSpace(phone); raw != "" && raw != canonical {
		searchSet = append(searchSet, raw)
	}
	for _, alternate := range lookup.AlternatePhones {
		if alt := validation.CanonicalPhone(alternate); alt != "" && !containsString(searchSet, alt) {
			searchSet = append(searchSet, alt)
		}
		if raw := strings.TrimSpace(alternate); raw != "" && !containsString(searchSet, raw) {
			searchSet = append(searchSet, raw)
		}
	}

	contact, err := r.contacts.FindContactByPhones(ctx, userID, searchSet)
	if err != nil {
		return nil, errors.NewDatabaseError("contact lookup", err)
	}

	if contact == nil {
		contact = &models.Contact{
			UserID: userID,
			Phone:  canonical,
			Name:   strings.TrimSpace(lookup.Name),
		}
		if err := r.contacts.CreateContact(ctx, contact); err != nil {
			if !database.IsUniqueConstraintError(err) {
				return nil, errors.NewDatabaseError("contact create", err)
			}
			// Lost a race with a concurrent insert on the same pair
			contact, err = r.contacts.FindContactByPhones(ctx, userID, searchSet)
			if err != nil {
				return nil, errors.NewDatabaseError("contact lookup", err)
			}
			if contact == nil {
				return nil, errors.NewNotFoundError("contact", privacy.MaskPhone(canonical))
			}
		} else {
			return contact, nil
		}
	}

	if contact.Phone != canonical {
		if err := r.contacts.UpdateContactPhone(ctx, contact.ID, canonical); err != nil {
			r.logger.WithError(err).WithField("contact_id", contact.ID).Warn("Failed to renormalize contact phone")
		} else {
			contact.Phone = canonical
		}
	}

	if name := strings.TrimSpace(lookup.Name); name != "" && name != strings.TrimSpace(contact.Name) {
		if err := r.contacts.UpdateContactName(ctx, contact.ID, name); err != nil {
			r.logger.WithError(err).WithField("contact_id", contact.ID).Warn("Failed to update contact name")
		} else {
			contact.Name = name
		}
	}

	return contact, nil
}

// EnsureActiveSessionForFlow opens or resumes the session for a (contact,
// flow) pair. Completed and errored sessions restart from a clean slate;
// paused sessions come back as-is for the executor to resume.
func (r *Resolver) EnsureActiveSessionForFlow(ctx context.Context, contact *models.Contact, flow *models.Flow) (*models.Session, error) {
	session, err := r.sessions.GetSessionByContactAndFlow(ctx, contact.ID, flow.ID)
	if err != nil {
		return nil, errors.NewDatabaseError("session lookup", err)
	}

	if session == nil {
		session = &models.Session{
			ContactID: contact.ID,
			FlowID:    flow.ID,
			Status:    models.SessionStatusActive,
			Context:   map[string]interface{}{},
		}
		if err := r.sessions.CreateSession(ctx, session); err != nil {
			if !database.IsUniqueConstraintError(err) {
				return nil, errors.NewDatabaseError("session create", err)
			}
			session, err = r.sessions.GetSessionByContactAndFlow(ctx, contact.ID, flow.ID)
			if err != nil {
				return nil, errors.NewDatabaseError("session lookup", err)
			}
			if session == nil {
				return nil, errors.NewNotFoundError("session", contact.ID)
			}
		} else {
			return session, nil
		}
	}

	if session.Status.IsTerminal() {
		session.Status = models.SessionStatusActive
		session.CurrentNodeID = nil
		session.Context = map[string]interface{}{}
		if err := r.sessions.UpdateSessionState(ctx, session); err != nil {
			return nil, errors.NewDatabaseError("session reset", err)
		}
	}

	return session, nil
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
