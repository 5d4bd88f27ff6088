package report

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"vpnpanel/internal/actions"
	"vpnpanel/internal/db"
	"vpnpanel/internal/model"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	gdb := db.NewTestDB(t)
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewService(gdb, logrus.NewEntry(l)), gdb
}

func createNode(t *testing.T, gdb *gorm.DB, name string) *model.Node {
	t.Helper()
	node := &model.Node{Name: name, IP: "10.0.0.1", Token: name + "-token"}
	if err := gdb.Create(node).Error; err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node
}

func getUser(t *testing.T, gdb *gorm.DB, username string) *model.VpnUser {
	t.Helper()
	var user model.VpnUser
	if err := gdb.Where("username = ?", username).First(&user).Error; err != nil {
		t.Fatalf("failed to load user %q: %v", username, err)
	}
	return &user
}

func TestIngestFullReport_NodeStatusMapping(t *testing.T) {
	tests := []struct {
		serviceStatus string
		want          model.NodeStatus
	}{
		{"running", model.NodeStatusOnline},
		{"stopped", model.NodeStatusOffline},
		{"degraded", model.NodeStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.serviceStatus, func(t *testing.T) {
			svc, gdb := newService(t)
			node := createNode(t, gdb, "node-"+tt.serviceStatus)

			err := svc.IngestFullReport(node.ID, NodeMetrics{
				CPUUsage:      12.5,
				RAMUsage:      40.0,
				ServiceStatus: tt.serviceStatus,
			}, nil, []string{})
			if err != nil {
				t.Fatalf("IngestFullReport() failed: %v", err)
			}

			var got model.Node
			if err := gdb.First(&got, "id = ?", node.ID).Error; err != nil {
				t.Fatalf("failed to reload node: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("node status = %v, want %v", got.Status, tt.want)
			}
			if got.CPUUsage != 12.5 || got.RAMUsage != 40.0 {
				t.Errorf("telemetry not stored: cpu=%v ram=%v", got.CPUUsage, got.RAMUsage)
			}
			if got.LastSeen == nil {
				t.Error("lastSeen should be stamped")
			}
		})
	}
}

func TestIngestFullReport_NodeNotFound(t *testing.T) {
	svc, _ := newService(t)

	err := svc.IngestFullReport("missing-id", NodeMetrics{ServiceStatus: "running"}, nil, nil)
	if err != ErrNodeNotFound {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestIngestFullReport_UpsertsProfiles(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	serial := "AB01"
	err := svc.IngestFullReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]Profile{{Username: "Alice", Status: "VALID", SerialNumber: &serial}},
		[]string{"alice"})
	if err != nil {
		t.Fatalf("IngestFullReport() failed: %v", err)
	}

	user := getUser(t, gdb, "alice")
	if user.NodeID != node.ID {
		t.Errorf("user bound to node %q, want %q", user.NodeID, node.ID)
	}
	if user.Status != model.VpnCertStatusValid {
		t.Errorf("user status = %v, want VALID", user.Status)
	}
	if !user.IsActive {
		t.Error("user should be active")
	}
	if user.LastConnected == nil {
		t.Error("lastConnected should be stamped for an active user")
	}
	if user.SerialNumber == nil || *user.SerialNumber != "AB01" {
		t.Errorf("serial = %v, want AB01", user.SerialNumber)
	}
}

func TestIngestFullReport_Idempotent(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	metrics := NodeMetrics{CPUUsage: 5, RAMUsage: 10, ServiceStatus: "running"}
	profiles := []Profile{
		{Username: "alice", Status: "VALID"},
		{Username: "bob", Status: "REVOKED"},
	}
	active := []string{"alice"}

	for i := 0; i < 2; i++ {
		if err := svc.IngestFullReport(node.ID, metrics, profiles, active); err != nil {
			t.Fatalf("IngestFullReport() pass %d failed: %v", i+1, err)
		}
	}

	var count int64
	gdb.Model(&model.VpnUser{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 users after double ingest, got %d", count)
	}

	alice := getUser(t, gdb, "alice")
	if !alice.IsActive || alice.Status != model.VpnCertStatusValid {
		t.Errorf("alice = active:%v status:%v, want active VALID", alice.IsActive, alice.Status)
	}
	bob := getUser(t, gdb, "bob")
	if bob.IsActive || bob.Status != model.VpnCertStatusRevoked {
		t.Errorf("bob = active:%v status:%v, want inactive REVOKED", bob.IsActive, bob.Status)
	}
}

func TestIngestFullReport_SweepDeactivatesUnreportedUsers(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	// a user the agent has already purged from its own knowledge
	stale := &model.VpnUser{Username: "ghost", NodeID: node.ID, IsActive: true}
	if err := gdb.Create(stale).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	err := svc.IngestFullReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]Profile{{Username: "alice", Status: "VALID"}}, []string{"alice"})
	if err != nil {
		t.Fatalf("IngestFullReport() failed: %v", err)
	}

	if getUser(t, gdb, "ghost").IsActive {
		t.Error("sweep should deactivate a user absent from activeUsers")
	}
	if !getUser(t, gdb, "alice").IsActive {
		t.Error("reported active user should stay active")
	}
}

func TestIngestFullReport_NeverReassignsNode(t *testing.T) {
	svc, gdb := newService(t)
	n1 := createNode(t, gdb, "n1")
	n2 := createNode(t, gdb, "n2")

	err := svc.IngestFullReport(n1.ID, NodeMetrics{ServiceStatus: "running"},
		[]Profile{{Username: "alice", Status: "VALID"}}, nil)
	if err != nil {
		t.Fatalf("first report failed: %v", err)
	}

	err = svc.IngestFullReport(n2.ID, NodeMetrics{ServiceStatus: "running"},
		[]Profile{{Username: "alice", Status: "VALID"}}, nil)
	if err != nil {
		t.Fatalf("second report failed: %v", err)
	}

	if got := getUser(t, gdb, "alice").NodeID; got != n1.ID {
		t.Errorf("nodeId = %q, want creation-time owner %q", got, n1.ID)
	}
}

func TestIngestStatusReport_Transitions(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	seed := []model.VpnUser{
		{Username: "joiner", NodeID: node.ID, IsActive: false},
		{Username: "stayer", NodeID: node.ID, IsActive: true},
		{Username: "leaver", NodeID: node.ID, IsActive: true},
		{Username: "idler", NodeID: node.ID, IsActive: false},
	}
	for i := range seed {
		if err := gdb.Create(&seed[i]).Error; err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}

	err := svc.IngestStatusReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]string{"joiner", "stayer"})
	if err != nil {
		t.Fatalf("IngestStatusReport() failed: %v", err)
	}

	joiner := getUser(t, gdb, "joiner")
	if !joiner.IsActive || joiner.LastConnected == nil {
		t.Error("newly active user should be active with lastConnected stamped")
	}
	stayer := getUser(t, gdb, "stayer")
	if !stayer.IsActive || stayer.LastConnected == nil {
		t.Error("still-active user should stay active with lastConnected refreshed")
	}
	if getUser(t, gdb, "leaver").IsActive {
		t.Error("newly inactive user should be deactivated")
	}
	idler := getUser(t, gdb, "idler")
	if idler.IsActive || idler.LastConnected != nil {
		t.Error("user that stays inactive should be untouched")
	}
}

func TestIngestStatusReport_NormalizesUsernames(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	user := &model.VpnUser{Username: "alice", NodeID: node.ID, IsActive: false}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	// agent reports with stray casing and whitespace
	for _, reported := range []string{"Alice ", " ALICE", "alice"} {
		err := svc.IngestStatusReport(node.ID, NodeMetrics{ServiceStatus: "running"},
			[]string{reported})
		if err != nil {
			t.Fatalf("IngestStatusReport(%q) failed: %v", reported, err)
		}
		if !getUser(t, gdb, "alice").IsActive {
			t.Errorf("reported username %q should match stored alice", reported)
		}
	}
}

func TestIngestStatusReport_OwnsOnlyLiveness(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	serial := "CAFE"
	exp := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	user := &model.VpnUser{
		Username:       "alice",
		NodeID:         node.ID,
		Status:         model.VpnCertStatusValid,
		SerialNumber:   &serial,
		ExpirationDate: &exp,
	}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	err := svc.IngestStatusReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]string{"alice"})
	if err != nil {
		t.Fatalf("IngestStatusReport() failed: %v", err)
	}

	got := getUser(t, gdb, "alice")
	if got.Status != model.VpnCertStatusValid {
		t.Errorf("status report changed certificate status to %v", got.Status)
	}
	if got.SerialNumber == nil || *got.SerialNumber != "CAFE" {
		t.Errorf("status report changed serial to %v", got.SerialNumber)
	}
	if got.ExpirationDate == nil {
		t.Error("status report cleared expirationDate")
	}
}

func TestIngestStatusReport_NeverCreatesProfiles(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	err := svc.IngestStatusReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]string{"nobody"})
	if err != nil {
		t.Fatalf("IngestStatusReport() failed: %v", err)
	}

	var count int64
	gdb.Model(&model.VpnUser{}).Count(&count)
	if count != 0 {
		t.Errorf("status report created %d profile(s)", count)
	}
}

func TestIngestProfileSync_CreatesInactive(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	ovpn := "client config"
	err := svc.IngestProfileSync(node.ID, []Profile{
		{Username: "Alice", Status: "PENDING", OvpnFileContent: &ovpn},
	})
	if err != nil {
		t.Fatalf("IngestProfileSync() failed: %v", err)
	}

	user := getUser(t, gdb, "alice")
	if user.IsActive {
		t.Error("profile sync must create users inactive")
	}
	if user.Status != model.VpnCertStatusPending {
		t.Errorf("status = %v, want PENDING", user.Status)
	}
	if user.OvpnFileContent == nil || *user.OvpnFileContent != ovpn {
		t.Error("credential bundle not stored")
	}
}

func TestIngestProfileSync_OwnsOnlyCertTruth(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	now := time.Now()
	user := &model.VpnUser{
		Username:      "alice",
		NodeID:        node.ID,
		Status:        model.VpnCertStatusValid,
		IsActive:      true,
		LastConnected: &now,
	}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	err := svc.IngestProfileSync(node.ID, []Profile{
		{Username: "alice", Status: "REVOKED"},
	})
	if err != nil {
		t.Fatalf("IngestProfileSync() failed: %v", err)
	}

	got := getUser(t, gdb, "alice")
	if got.Status != model.VpnCertStatusRevoked {
		t.Errorf("status = %v, want REVOKED", got.Status)
	}
	if !got.IsActive {
		t.Error("profile sync must never modify isActive on update")
	}
}

func TestIngestProfileSync_NodeNotFound(t *testing.T) {
	svc, _ := newService(t)

	err := svc.IngestProfileSync("missing-id", []Profile{{Username: "alice", Status: "VALID"}})
	if err != ErrNodeNotFound {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestCompleteAction_NotFound(t *testing.T) {
	svc, _ := newService(t)

	err := svc.CompleteAction("missing-id", true, "done", nil)
	if err != ErrActionLogNotFound {
		t.Errorf("expected ErrActionLogNotFound, got %v", err)
	}
}

func TestCompleteAction_Failure(t *testing.T) {
	svc, gdb := newService(t)
	node := createNode(t, gdb, "n1")

	logRec := &model.ActionLog{
		Action:  model.ActionCreateUser,
		NodeID:  node.ID,
		Details: "alice",
		Status:  model.ActionStatusPending,
	}
	if err := gdb.Create(logRec).Error; err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	if err := svc.CompleteAction(logRec.ID, false, "openssl exploded", nil); err != nil {
		t.Fatalf("CompleteAction() failed: %v", err)
	}

	var got model.ActionLog
	gdb.First(&got, "id = ?", logRec.ID)
	if got.Status != model.ActionStatusFailed {
		t.Errorf("status = %v, want FAILED", got.Status)
	}
	if got.Message != "openssl exploded" {
		t.Errorf("message = %q", got.Message)
	}
	if got.ExecutedAt == nil {
		t.Error("executedAt should be stamped")
	}
	if got.VpnUserID != nil {
		t.Error("failed CREATE_USER must not be linked")
	}
}

// Exercises the whole asynchronous CREATE_USER lifecycle, including the
// completion that races ahead of the profile sync and the retry that
// heals the linkage.
func TestCreateUserLifecycle(t *testing.T) {
	svc, gdb := newService(t)
	queue := actions.NewService(gdb)
	node := createNode(t, gdb, "n1")

	// 1. admin enqueues the intent
	logRec, err := queue.EnqueueCreateUser(node.ID, "Alice")
	if err != nil {
		t.Fatalf("EnqueueCreateUser() failed: %v", err)
	}
	if logRec.Status != model.ActionStatusPending {
		t.Fatalf("log status = %v, want PENDING", logRec.Status)
	}

	// 2. agent polls and receives it
	pending, err := queue.Pending(node.ID)
	if err != nil || len(pending) != 1 || pending[0].ID != logRec.ID {
		t.Fatalf("Pending() = %v, %v; want the enqueued log", pending, err)
	}

	// 3. agent completes before any profile sync materialized the user
	ovpn := "ovpn bundle"
	if err := svc.CompleteAction(logRec.ID, true, "created", &ovpn); err != nil {
		t.Fatalf("CompleteAction() failed: %v", err)
	}
	var got model.ActionLog
	gdb.First(&got, "id = ?", logRec.ID)
	if got.Status != model.ActionStatusCompleted {
		t.Errorf("status = %v, want COMPLETED", got.Status)
	}
	if got.VpnUserID != nil {
		t.Error("vpnUserId should stay nil while the profile is missing")
	}
	var audits int64
	gdb.Model(&model.AuditEvent{}).Where("kind = ?", model.AuditKindSyncInconsistency).Count(&audits)
	if audits != 1 {
		t.Errorf("expected 1 sync_inconsistency audit event, got %d", audits)
	}

	// 4. a later full report materializes the profile
	err = svc.IngestFullReport(node.ID, NodeMetrics{ServiceStatus: "running"},
		[]Profile{{Username: "alice", Status: "VALID"}}, nil)
	if err != nil {
		t.Fatalf("IngestFullReport() failed: %v", err)
	}

	// 5. the agent retries the completion; now the link succeeds
	if err := svc.CompleteAction(logRec.ID, true, "created", &ovpn); err != nil {
		t.Fatalf("CompleteAction() retry failed: %v", err)
	}
	gdb.First(&got, "id = ?", logRec.ID)
	user := getUser(t, gdb, "alice")
	if got.VpnUserID == nil || *got.VpnUserID != user.ID {
		t.Errorf("log not linked: vpnUserId = %v, want %q", got.VpnUserID, user.ID)
	}
	if user.OvpnFileContent == nil || *user.OvpnFileContent != ovpn {
		t.Error("credential bundle not stored on retry")
	}
	if user.Status != model.VpnCertStatusValid {
		t.Errorf("completion must not change certificate status, got %v", user.Status)
	}
}
