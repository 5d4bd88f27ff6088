// Package offline marks nodes whose agent has gone quiet. Node health
// is normally derived from pushed reports, which means a node whose
// agent dies keeps its last reported status forever; this worker flips
// such nodes to UNKNOWN once their lastSeen falls behind a threshold.
package offline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vpnpanel/internal/model"
)

// Worker periodically marks stale nodes as UNKNOWN
type Worker struct {
	ctx        context.Context
	cancel     context.CancelFunc
	db         *gorm.DB
	logger     *logrus.Entry
	interval   time.Duration
	staleAfter time.Duration
}

// Config holds the configuration for the stale-node marker
type Config struct {
	DB            *gorm.DB
	Logger        *logrus.Entry
	IntervalSec   int
	StaleAfterSec int
}

// NewWorker creates a new stale-node marker worker
func NewWorker(cfg *Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ctx:        ctx,
		cancel:     cancel,
		db:         cfg.DB,
		logger:     cfg.Logger.WithField("component", "offline-marker"),
		interval:   time.Duration(cfg.IntervalSec) * time.Second,
		staleAfter: time.Duration(cfg.StaleAfterSec) * time.Second,
	}
}

// Start begins the periodic marking
func (w *Worker) Start() {
	w.logger.Info("Starting stale-node marker...")
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RunOnce()
			case <-w.ctx.Done():
				w.logger.Info("Stopping stale-node marker...")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.cancel()
}

// RunOnce marks every node whose last report is older than the
// threshold. Nodes that never reported are left alone; they already
// default to UNKNOWN.
func (w *Worker) RunOnce() {
	cutoff := time.Now().Add(-w.staleAfter)
	res := w.db.Model(&model.Node{}).
		Where("last_seen IS NOT NULL AND last_seen < ? AND status <> ?",
			cutoff, model.NodeStatusUnknown).
		Update("status", model.NodeStatusUnknown)
	if res.Error != nil {
		w.logger.Errorf("Failed to mark stale nodes: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		w.logger.Warnf("Marked %d node(s) as UNKNOWN, no report since %s", res.RowsAffected, cutoff.Format(time.RFC3339))
	}
}
