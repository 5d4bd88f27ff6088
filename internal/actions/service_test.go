package actions

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"vpnpanel/internal/db"
	"vpnpanel/internal/model"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := db.NewTestDB(t)
	return NewService(gdb), gdb
}

func createNode(t *testing.T, gdb *gorm.DB, name string) *model.Node {
	t.Helper()
	node := &model.Node{Name: name, IP: "10.0.0.1", Token: name + "-token"}
	if err := gdb.Create(node).Error; err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node
}

func TestEnqueueCreateUser(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	logRec, err := svc.EnqueueCreateUser(node.ID, " Alice ")
	if err != nil {
		t.Fatalf("EnqueueCreateUser() failed: %v", err)
	}
	if logRec.Details != "alice" {
		t.Errorf("details = %q, want normalized alice", logRec.Details)
	}
	if logRec.Action != model.ActionCreateUser || logRec.Status != model.ActionStatusPending {
		t.Errorf("log = %v/%v, want CREATE_USER/PENDING", logRec.Action, logRec.Status)
	}
	if logRec.VpnUserID != nil {
		t.Error("vpnUserId must start nil; the profile does not exist yet")
	}
}

func TestEnqueueCreateUser_NodeNotFound(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.EnqueueCreateUser("missing-id", "alice"); err != ErrNodeNotFound {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestEnqueueCreateUser_UserExists(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	user := &model.VpnUser{Username: "alice", NodeID: node.ID}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	// casing must not evade the duplicate check
	if _, err := svc.EnqueueCreateUser(node.ID, "ALICE"); err != ErrUserExists {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestEnqueueCreateUser_CreationPending(t *testing.T) {
	svc, gdb := newService(t)
	n1 := createNode(t, gdb, "n1")
	n2 := createNode(t, gdb, "n2")

	if _, err := svc.EnqueueCreateUser(n1.ID, "alice"); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	// the pending guard is fleet-wide, not per node
	if _, err := svc.EnqueueCreateUser(n2.ID, "Alice"); err != ErrCreationPending {
		t.Errorf("expected ErrCreationPending, got %v", err)
	}
}

func TestEnqueueCreateUser_AllowedAfterTerminalLog(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	failed := &model.ActionLog{
		Action:  model.ActionCreateUser,
		NodeID:  node.ID,
		Details: "alice",
		Status:  model.ActionStatusFailed,
	}
	if err := gdb.Create(failed).Error; err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	if _, err := svc.EnqueueCreateUser(node.ID, "alice"); err != nil {
		t.Errorf("terminal logs must not block a new enqueue, got %v", err)
	}
}

func TestPending_OldestFirst(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")
	other := createNode(t, gdb, "n2")

	base := time.Now().Add(-time.Hour)
	seed := []model.ActionLog{
		{Action: model.ActionCreateUser, NodeID: node.ID, Details: "second", Status: model.ActionStatusPending, CreatedAt: base.Add(2 * time.Minute)},
		{Action: model.ActionCreateUser, NodeID: node.ID, Details: "first", Status: model.ActionStatusPending, CreatedAt: base.Add(time.Minute)},
		{Action: model.ActionCreateUser, NodeID: node.ID, Details: "done", Status: model.ActionStatusCompleted, CreatedAt: base},
		{Action: model.ActionCreateUser, NodeID: other.ID, Details: "elsewhere", Status: model.ActionStatusPending, CreatedAt: base},
	}
	for i := range seed {
		if err := gdb.Create(&seed[i]).Error; err != nil {
			t.Fatalf("failed to seed log: %v", err)
		}
	}

	pending, err := svc.Pending(node.ID)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending logs, want 2", len(pending))
	}
	if pending[0].Details != "first" || pending[1].Details != "second" {
		t.Errorf("order = %q, %q; want first, second", pending[0].Details, pending[1].Details)
	}

	// polling must not consume entries
	again, err := svc.Pending(node.ID)
	if err != nil || len(again) != 2 {
		t.Errorf("repeat poll = %d logs, %v; want the same 2", len(again), err)
	}
}

func TestRevoke(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	user := &model.VpnUser{Username: "alice", NodeID: node.ID, Status: model.VpnCertStatusValid}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	logRec, err := svc.Revoke(user.ID)
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if logRec.Action != model.ActionRevokeUser || logRec.Status != model.ActionStatusPending {
		t.Errorf("log = %v/%v, want REVOKE_USER/PENDING", logRec.Action, logRec.Status)
	}
	if logRec.VpnUserID == nil || *logRec.VpnUserID != user.ID {
		t.Errorf("vpnUserId = %v, want %q", logRec.VpnUserID, user.ID)
	}
	if logRec.NodeID != node.ID {
		t.Errorf("nodeId = %q, want the user's node %q", logRec.NodeID, node.ID)
	}

	// enqueueing records intent only; the status flips on a profile sync
	var got model.VpnUser
	gdb.First(&got, "id = ?", user.ID)
	if got.Status != model.VpnCertStatusValid {
		t.Errorf("Revoke() changed certificate status to %v", got.Status)
	}
}

func TestRevoke_AlreadyRevoked(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	user := &model.VpnUser{Username: "alice", NodeID: node.ID, Status: model.VpnCertStatusRevoked}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	if _, err := svc.Revoke(user.ID); err != ErrAlreadyRevoked {
		t.Errorf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestRevoke_UserNotFound(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Revoke("missing-id"); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRecent(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	user := &model.VpnUser{Username: "alice", NodeID: node.ID}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	seed := []model.ActionLog{
		{Action: model.ActionCreateUser, NodeID: node.ID, Details: "older", Status: model.ActionStatusCompleted, CreatedAt: base},
		{Action: model.ActionRevokeUser, NodeID: node.ID, VpnUserID: &user.ID, Details: "alice", Status: model.ActionStatusPending, CreatedAt: base.Add(time.Minute)},
	}
	for i := range seed {
		if err := gdb.Create(&seed[i]).Error; err != nil {
			t.Fatalf("failed to seed log: %v", err)
		}
	}

	rows, err := svc.Recent(10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Action != model.ActionRevokeUser {
		t.Errorf("rows not newest first: rows[0].Action = %v", rows[0].Action)
	}
	if rows[0].NodeName != "n1" {
		t.Errorf("nodeName = %q, want n1", rows[0].NodeName)
	}
	if rows[0].Username == nil || *rows[0].Username != "alice" {
		t.Errorf("username = %v, want alice", rows[0].Username)
	}
	if rows[1].Username != nil {
		t.Errorf("unlinked log should carry a nil username, got %v", rows[1].Username)
	}

	one, err := svc.Recent(1)
	if err != nil || len(one) != 1 {
		t.Errorf("Recent(1) = %d rows, %v; want 1 row", len(one), err)
	}
}
