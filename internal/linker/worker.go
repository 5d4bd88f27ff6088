// Package linker heals the weak ActionLog -> VpnUser reference.
//
// A CREATE_USER completion can arrive before the profile sync that
// materializes the VpnUser row; the log then stays COMPLETED with a nil
// vpn_user_id. This worker periodically re-links such logs once the
// profile exists, so the linkage is eventually consistent even when the
// agent never retries the completion call.
package linker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vpnpanel/internal/audit"
	"vpnpanel/internal/model"
)

// Worker periodically links unlinked CREATE_USER completions
type Worker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	db        *gorm.DB
	logger    *logrus.Entry
	audit     *audit.Recorder
	interval  time.Duration
	batchSize int
}

// Config holds the configuration for the linker worker
type Config struct {
	DB          *gorm.DB
	Logger      *logrus.Entry
	IntervalSec int
	BatchSize   int
}

// NewWorker creates a new linker worker
func NewWorker(cfg *Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		ctx:       ctx,
		cancel:    cancel,
		db:        cfg.DB,
		logger:    cfg.Logger.WithField("component", "linker-worker"),
		audit:     audit.NewRecorder(cfg.Logger),
		interval:  time.Duration(cfg.IntervalSec) * time.Second,
		batchSize: cfg.BatchSize,
	}
}

// Start begins the periodic sweep
func (w *Worker) Start() {
	w.logger.Info("Starting action-log linker worker...")
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RunSweep()
			case <-w.ctx.Done():
				w.logger.Info("Stopping action-log linker worker...")
				return
			}
		}
	}()
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.cancel()
}

// RunSweep links one batch of unlinked completions. Exported so a sweep
// can also be triggered outside the ticker loop.
func (w *Worker) RunSweep() {
	var logs []model.ActionLog
	err := w.db.
		Where("action = ? AND status = ? AND vpn_user_id IS NULL",
			model.ActionCreateUser, model.ActionStatusCompleted).
		Order("executed_at ASC").
		Limit(w.batchSize).
		Find(&logs).Error
	if err != nil {
		w.logger.Errorf("Failed to fetch unlinked action logs: %v", err)
		return
	}

	linked := 0
	for _, logRec := range logs {
		username := model.NormalizeUsername(logRec.Details)
		if username == "" {
			continue
		}
		if err := w.linkOne(logRec, username); err != nil {
			w.logger.Errorf("Failed to link action log %s: %v", logRec.ID, err)
		} else {
			linked++
		}
	}
	if linked > 0 {
		w.logger.Infof("Linked %d action log(s) to synced profiles", linked)
	}
}

func (w *Worker) linkOne(logRec model.ActionLog, username string) error {
	return w.db.Transaction(func(tx *gorm.DB) error {
		var user model.VpnUser
		if err := tx.Select("id").Where("username = ?", username).First(&user).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				// profile still missing, try again next sweep
				return nil
			}
			return err
		}
		if err := tx.Model(&model.ActionLog{}).Where("id = ?", logRec.ID).
			Update("vpn_user_id", user.ID).Error; err != nil {
			return err
		}
		w.audit.Record(tx, model.AuditKindActionLinked,
			model.StrPtr(logRec.NodeID), model.StrPtr(logRec.ID),
			"late-linked CREATE_USER completion to synced profile",
			map[string]any{"username": username, "vpnUserId": user.ID})
		return nil
	})
}
