package diag

import "testing"

func TestUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.Update(CheckPhone, StatusOK, "connected: Pixel 8")

	c, ok := m.Get(CheckPhone)
	if !ok {
		t.Fatal("check not recorded")
	}
	if c.Status != StatusOK || c.Message != "connected: Pixel 8" {
		t.Fatalf("check = %+v", c)
	}
	if c.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}
}

func TestOverallReturnsWorst(t *testing.T) {
	m := NewMonitor()

	if m.Overall() != StatusOK {
		t.Fatalf("empty monitor overall = %s, want ok", m.Overall())
	}

	m.Update(CheckPhone, StatusOK, "")
	m.Update(CheckVirtualMic, StatusWarn, "no virtual mic")
	if m.Overall() != StatusWarn {
		t.Fatalf("overall = %s, want warn", m.Overall())
	}

	m.Update(CheckRemoteApp, StatusError, "install failed")
	if m.Overall() != StatusError {
		t.Fatalf("overall = %s, want error", m.Overall())
	}
}

func TestAllKeepsDisplayOrder(t *testing.T) {
	m := NewMonitor()
	m.Update(CheckStream, StatusUnknown, "")
	m.Update(CheckPhone, StatusOK, "")
	m.Update(CheckVirtualMic, StatusOK, "")

	all := m.All()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Name != CheckPhone || all[1].Name != CheckVirtualMic || all[2].Name != CheckStream {
		t.Fatalf("order = %s, %s, %s", all[0].Name, all[1].Name, all[2].Name)
	}
}
