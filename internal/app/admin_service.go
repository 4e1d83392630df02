package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"guild_scheduler_bot/internal/domain/apperrors"
	"guild_scheduler_bot/internal/domain/guildconfig"
)

// Reconciler applies a recurring config to the live schedule.
type Reconciler interface {
	Reconcile(ctx context.Context, guildID string, kind guildconfig.Kind, cfg *guildconfig.RecurringConfig) error
}

// AdminService handles operator changes to guild configuration.
// Invalid input is rejected before anything is written.
type AdminService struct {
	configs guildconfig.Repository
	// reconciler is nil in processes that do not run the scheduler (the CLI);
	// the running daemon picks the write up from the change feed.
	reconciler Reconciler
	logger     *logrus.Entry
}

func NewAdminService(configs guildconfig.Repository, reconciler Reconciler, logger *logrus.Entry) *AdminService {
	return &AdminService{
		configs:    configs,
		reconciler: reconciler,
		logger:     logger.WithField("component", "admin"),
	}
}

// SaveConfig merges patch into the stored document of its kind and returns the result.
// Fields left empty in patch keep their stored values; Enabled is always taken from patch.
func (s *AdminService) SaveConfig(ctx context.Context, guildID string, patch guildconfig.Config) (guildconfig.Config, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, apperrors.NewConfigurationError("guild_id", "", "required")
	}
	if patch == nil || !patch.Kind().Valid() {
		return nil, apperrors.NewConfigurationError("kind", "", "unknown config kind")
	}
	kind := patch.Kind()

	current, err := s.configs.Get(ctx, guildID, kind)
	if err != nil && !errors.Is(err, guildconfig.ErrNotFound) {
		return nil, fmt.Errorf("failed to load %s config for guild %s: %w", kind, guildID, err)
	}
	merged, err := guildconfig.Merge(current, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to merge %s config: %w", kind, err)
	}
	if err := guildconfig.Validate(merged); err != nil {
		return nil, err
	}

	if err := s.configs.Set(ctx, guildID, patch, true); err != nil {
		return nil, fmt.Errorf("failed to save %s config for guild %s: %w", kind, guildID, err)
	}
	s.logger.WithFields(logrus.Fields{"guild_id": guildID, "kind": kind}).Info("Guild config saved")

	if err := s.reconcile(ctx, guildID, merged); err != nil {
		return merged, err
	}
	return merged, nil
}

// Disable turns the document of kind off while keeping its other settings.
func (s *AdminService) Disable(ctx context.Context, guildID string, kind guildconfig.Kind) error {
	patch, err := guildconfig.Decode(kind, nil)
	if err != nil {
		return apperrors.NewConfigurationError("kind", string(kind), "unknown config kind")
	}
	_, err = s.SaveConfig(ctx, guildID, patch)
	return err
}

// Remove deletes the document of kind.
func (s *AdminService) Remove(ctx context.Context, guildID string, kind guildconfig.Kind) error {
	if err := s.configs.Delete(ctx, guildID, kind); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"guild_id": guildID, "kind": kind}).Info("Guild config removed")
	if kind.IsRecurring() && s.reconciler != nil {
		return s.reconciler.Reconcile(ctx, guildID, kind, nil)
	}
	return nil
}

func (s *AdminService) List(ctx context.Context) ([]guildconfig.Document, error) {
	docs, err := s.configs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild configs: %w", err)
	}
	return docs, nil
}

// Import replaces the documents given, all or none validated up front.
// It returns the number of documents written.
func (s *AdminService) Import(ctx context.Context, docs []guildconfig.Document) (int, error) {
	for i, doc := range docs {
		if strings.TrimSpace(doc.GuildID) == "" {
			return 0, fmt.Errorf("document %d: %w", i, apperrors.NewConfigurationError("guild_id", "", "required"))
		}
		if err := guildconfig.Validate(doc.Config); err != nil {
			return 0, fmt.Errorf("document %d (guild %s): %w", i, doc.GuildID, err)
		}
	}

	written := 0
	for _, doc := range docs {
		if err := s.configs.Set(ctx, doc.GuildID, doc.Config, false); err != nil {
			return written, fmt.Errorf("failed to import %s config for guild %s: %w", doc.Config.Kind(), doc.GuildID, err)
		}
		written++
		if err := s.reconcile(ctx, doc.GuildID, doc.Config); err != nil {
			s.logger.WithError(err).WithField("guild_id", doc.GuildID).Warn("Imported config could not be scheduled")
		}
	}
	s.logger.WithField("documents", written).Info("Guild configs imported")
	return written, nil
}

func (s *AdminService) reconcile(ctx context.Context, guildID string, cfg guildconfig.Config) error {
	rc, ok := cfg.(*guildconfig.RecurringConfig)
	if !ok || s.reconciler == nil {
		return nil
	}
	return s.reconciler.Reconcile(ctx, guildID, rc.Kind(), rc)
}
