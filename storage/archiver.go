package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bracketline/tournament-engine/models"
)

// Snapshot is the immutable record of a finished tournament: final
// bracket, standings and payouts in one document.
type Snapshot struct {
	Tournament *models.Tournament         `json:"tournament"`
	Standings  []models.Standing          `json:"standings,omitempty"`
	Prizes     []models.PrizeDistribution `json:"prizes,omitempty"`
	ArchivedAt time.Time                  `json:"archived_at"`
}

// Archiver uploads tournament snapshots to the object store.
type Archiver struct {
	uploader FileUploader
}

func NewArchiver(uploader FileUploader) *Archiver {
	return &Archiver{uploader: uploader}
}

// Archive serializes the snapshot and stores it under a key derived from
// the tournament id. Returns the public URL of the stored document.
func (a *Archiver) Archive(ctx context.Context, snapshot Snapshot) (string, error) {
	if snapshot.Tournament == nil {
		return "", fmt.Errorf("archive: tournament is required")
	}
	snapshot.ArchivedAt = time.Now().UTC()

	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal snapshot for tournament %d: %w", snapshot.Tournament.ID, err)
	}

	key := fmt.Sprintf("archives/tournaments/%d.json", snapshot.Tournament.ID)
	result, err := a.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive: upload snapshot for tournament %d: %w", snapshot.Tournament.ID, err)
	}
	return result.Location, nil
}
