// Package status builds the sync status view shown to the user.
package status

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iudanet/taskkeeper/internal/client/sync"
	"github.com/iudanet/taskkeeper/internal/models"
)

// RecordSummary is the user-facing view of a queued mutation.
type RecordSummary struct {
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at"`
	LastError  *string           `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	ID         string            `json:"id" yaml:"id"`
	EntityType models.EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID   string            `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
	Action     models.Action     `json:"action" yaml:"action"`
	SyncStatus models.SyncStatus `json:"sync_status" yaml:"sync_status"`
	RetryCount int               `json:"retry_count" yaml:"retry_count"`
}

// ConflictSummary is the user-facing view of an unresolved conflict.
type ConflictSummary struct {
	DetectedAt    time.Time         `json:"detected_at" yaml:"detected_at"`
	ServerVersion models.Payload    `json:"server_version" yaml:"server_version"`
	LocalVersion  models.Payload    `json:"local_version" yaml:"local_version"`
	RecordID      string            `json:"record_id" yaml:"record_id"`
	EntityType    models.EntityType `json:"entity_type" yaml:"entity_type"`
	EntityID      string            `json:"entity_id" yaml:"entity_id"`
	Reason        string            `json:"reason" yaml:"reason"`
}

// Status is a point-in-time snapshot. It is computed on demand and never stored.
type Status struct {
	LastSyncTime *time.Time        `json:"last_sync_time" yaml:"last_sync_time"`
	Conflicts    []ConflictSummary `json:"conflicts" yaml:"conflicts"`
	Records      []RecordSummary   `json:"records" yaml:"records"`
	PendingCount int               `json:"pending_count" yaml:"pending_count"`
	FailedCount  int               `json:"failed_count" yaml:"failed_count"`
	SuccessCount int               `json:"success_count" yaml:"success_count"`
	FailureCount int               `json:"failure_count" yaml:"failure_count"`
	Offline      bool              `json:"offline" yaml:"offline"`
	InProgress   bool              `json:"in_progress" yaml:"in_progress"`
}

// Source provides the pieces a status is built from.
type Source interface {
	IsOffline() bool
	Records() []*models.MutationRecord
	Session() sync.Session
}

// Reporter computes Status from a Source.
type Reporter struct {
	source Source
}

// NewReporter returns a reporter over source.
func NewReporter(source Source) *Reporter {
	return &Reporter{source: source}
}

// Status assembles the current snapshot.
func (r *Reporter) Status() Status {
	session := r.source.Session()
	records := r.source.Records()

	st := Status{
		Offline:      r.source.IsOffline(),
		InProgress:   session.InProgress,
		SuccessCount: session.SuccessCount,
		FailureCount: session.FailureCount,
		Records:      make([]RecordSummary, 0, len(records)),
		Conflicts:    make([]ConflictSummary, 0, len(session.Conflicts)),
	}
	if !session.LastSyncTime.IsZero() {
		last := session.LastSyncTime
		st.LastSyncTime = &last
	}

	for _, rec := range records {
		if rec.SyncStatus != models.StatusSuccess {
			st.PendingCount++
		}
		if rec.SyncStatus == models.StatusFailed {
			st.FailedCount++
		}
		st.Records = append(st.Records, RecordSummary{
			ID:         rec.ID,
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID(),
			Action:     rec.Action,
			SyncStatus: rec.SyncStatus,
			RetryCount: rec.RetryCount,
			LastError:  rec.LastError,
			CreatedAt:  rec.CreatedAt,
		})
	}

	inSession := make(map[string]bool, len(session.Conflicts))
	for _, c := range session.Conflicts {
		inSession[c.RecordID] = true
		st.Conflicts = append(st.Conflicts, ConflictSummary{
			RecordID:      c.RecordID,
			EntityType:    c.EntityType,
			EntityID:      c.EntityID,
			ServerVersion: c.ServerVersion,
			LocalVersion:  c.LocalVersion,
			DetectedAt:    c.DetectedAt,
			Reason:        c.Reason,
		})
	}

	// конфликты прошлых запусков известны только по статусу записи
	for _, rec := range records {
		if rec.SyncStatus != models.StatusConflict || inSession[rec.ID] {
			continue
		}
		reason := ""
		if rec.LastError != nil {
			reason = *rec.LastError
		}
		st.Conflicts = append(st.Conflicts, ConflictSummary{
			RecordID:     rec.ID,
			EntityType:   rec.EntityType,
			EntityID:     rec.EntityID(),
			LocalVersion: rec.Payload,
			Reason:       reason,
		})
	}

	return st
}

// Indicator returns the one-line banner shown while offline or with unsynced changes.
// It is empty when online with nothing queued.
func (s Status) Indicator() string {
	switch {
	case s.Offline && s.PendingCount > 0:
		return fmt.Sprintf("Offline: %d %s waiting to sync", s.PendingCount, plural(s.PendingCount, "change", "changes"))
	case s.Offline:
		return "Offline: changes will be saved locally"
	case s.InProgress:
		return "Syncing..."
	case len(s.Conflicts) > 0:
		return fmt.Sprintf("%d unresolved %s", len(s.Conflicts), plural(len(s.Conflicts), "conflict", "conflicts"))
	case s.PendingCount > 0:
		return fmt.Sprintf("%d %s waiting to sync", s.PendingCount, plural(s.PendingCount, "change", "changes"))
	}
	return ""
}

// WriteText renders a human-readable status.
func WriteText(w io.Writer, s Status) error {
	var b strings.Builder

	state := "online"
	if s.Offline {
		state = "offline"
	}
	fmt.Fprintf(&b, "Connection:   %s\n", state)
	fmt.Fprintf(&b, "Pending:      %d\n", s.PendingCount)
	fmt.Fprintf(&b, "Failed:       %d\n", s.FailedCount)
	fmt.Fprintf(&b, "Synced:       %d (errors: %d)\n", s.SuccessCount, s.FailureCount)
	if s.LastSyncTime != nil {
		fmt.Fprintf(&b, "Last sync:    %s\n", s.LastSyncTime.Local().Format("2006-01-02 15:04:05"))
	} else {
		b.WriteString("Last sync:    never\n")
	}
	if s.InProgress {
		b.WriteString("Sync in progress\n")
	}
	if banner := s.Indicator(); banner != "" {
		fmt.Fprintf(&b, "\n%s\n", banner)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	if len(s.Records) > 0 {
		if _, err := io.WriteString(w, "\nQueue:\n"); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tACTION\tENTITY\tSTATUS\tRETRIES\tERROR")
		for _, r := range s.Records {
			lastErr := ""
			if r.LastError != nil {
				lastErr = *r.LastError
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.ID, r.EntityType, r.Action, r.EntityID, r.SyncStatus, r.RetryCount, lastErr)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(s.Conflicts) > 0 {
		if _, err := io.WriteString(w, "\nConflicts:\n"); err != nil {
			return err
		}
		for _, c := range s.Conflicts {
			if _, err := fmt.Fprintf(w, "  %s %s #%s: %s\n", c.RecordID, c.EntityType, c.EntityID, c.Reason); err != nil {
				return err
			}
		}
	}

	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
