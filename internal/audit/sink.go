package audit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/config"
)

// New creates the sink selected by the configured backend
func New(cfg config.AuditConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Backend {
	case "memory", "":
		logger.Info("Audit trail kept in memory", zap.Int("capacity", cfg.MemoryCapacity))
		return NewMemoryStore(cfg.MemoryCapacity), nil
	case "postgres":
		return NewPostgresStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown audit backend: %s", cfg.Backend)
	}
}
