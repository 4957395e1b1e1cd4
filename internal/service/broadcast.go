package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"waflow/internal/models"
	"waflow/internal/privacy"

	"github.com/sirupsen/logrus"
)

// BroadcastReconciler maps Meta delivery status callbacks onto broadcast
// recipients and keeps the parent broadcast's aggregates in step using atomic
// counter deltas
type BroadcastReconciler struct {
	store  BroadcastStore
	logger *logrus.Logger
}

func NewBroadcastReconciler(store BroadcastStore, logger *logrus.Logger) *BroadcastReconciler {
	return &BroadcastReconciler{store: store, logger: logger}
}

var canonicalStatuses = map[string]models.RecipientStatus{
	"sent":        models.RecipientStatusSent,
	"delivered":   models.RecipientStatusDelivered,
	"read":        models.RecipientStatusRead,
	"failed":      models.RecipientStatusFailed,
	"undelivered": models.RecipientStatusFailed,
	"deleted":     models.RecipientStatusFailed,
	"warning":     models.RecipientStatusWarning,
	"pending":     models.RecipientStatusPending,
	"queued":      models.RecipientStatusPending,
}

// CanonicalStatus maps a raw Meta status onto the canonical recipient state.
// Unknown statuses are capitalized and carried through.
func CanonicalStatus(raw string) models.RecipientStatus {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := canonicalStatuses[normalized]; ok {
		return canonical
	}
	if normalized == "" {
		return ""
	}
	return models.RecipientStatus(strings.ToUpper(normalized[:1]) + normalized[1:])
}

// ProcessStatuses reconciles each status independently; one failure does not
// stop the siblings
func (r *BroadcastReconciler) ProcessStatuses(ctx context.Context, user *models.User, statuses []models.MetaMessageStatus) {
	for i := range statuses {
		status := &statuses[i]
		if status.ID == "" {
			continue
		}
		if err := r.processStatus(ctx, user, status); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"message_id": privacy.MaskWaMessageID(status.ID),
				"status":     status.Status,
			}).Warn("Failed to reconcile broadcast status")
		}
	}
}

func (r *BroadcastReconciler) processStatus(ctx context.Context, user *models.User, status *models.MetaMessageStatus) error {
	recipient, err := r.store.GetRecipientByMessageID(ctx, user.ID, status.ID)
	if err != nil {
		return fmt.Errorf("recipient lookup failed: %w", err)
	}
	if recipient == nil {
		// Statuses for direct flow sends have no broadcast recipient
		return nil
	}

	canonical := CanonicalStatus(status.Status)

	update := models.RecipientStatusUpdate{
		Status:          canonical,
		StatusUpdatedAt: parseStatusTimestamp(status.Timestamp),
	}
	if status.Conversation != nil {
		update.ConversationID = status.Conversation.ID
	}
	if canonical.IsFailure() {
		update.Error = failureMessage(status)
	} else {
		update.ClearError = true
	}

	if err := r.store.UpdateRecipientStatus(ctx, recipient.ID, update); err != nil {
		return fmt.Errorf("recipient update failed: %w", err)
	}

	successDelta := setDelta(recipient.Status.IsSuccess(), canonical.IsSuccess())
	failureDelta := setDelta(recipient.Status.IsFailure(), canonical.IsFailure())
	if successDelta != 0 || failureDelta != 0 {
		if err := r.store.AdjustBroadcastCounters(ctx, recipient.BroadcastID, successDelta, failureDelta); err != nil {
			return fmt.Errorf("counter adjustment failed: %w", err)
		}
	}

	return nil
}

// setDelta computes the aggregate adjustment for membership in a counting
// set: +1 entering, -1 leaving, 0 otherwise
func setDelta(was, is bool) int {
	switch {
	case is && !was:
		return 1
	case was && !is:
		return -1
	default:
		return 0
	}
}

// parseStatusTimestamp reads a Meta status timestamp: epoch seconds when
// numeric, ISO-8601 otherwise, falling back to now
func parseStatusTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC()
	}
	if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC()
	}
	return time.Now().UTC()
}

// failureMessage extracts the most specific failure reason from the status
// errors
func failureMessage(status *models.MetaMessageStatus) string {
	for i := range status.Errors {
		statusErr := &status.Errors[i]
		if statusErr.ErrorData.Details != "" {
			return statusErr.ErrorData.Details
		}
		if statusErr.Message != "" {
			return statusErr.Message
		}
		if statusErr.Title != "" {
			return statusErr.Title
		}
		if statusErr.Code != 0 {
			return fmt.Sprintf("Error code %d", statusErr.Code)
		}
	}
	return "Meta reported delivery failure"
}
