package tracker

import (
	"testing"
	"time"

	"github.com/deskwatchhq/deskwatch/pkg/types"
)

func record(id int64, name string, status types.AgentStatus) types.AgentRecord {
	return types.AgentRecord{ID: id, Name: name, Status: status}
}

func watched(id int64, name string) types.AgentRecord {
	return record(id, name, types.StatusTransfersOnly)
}

func TestTrackerAlertsOnceAtThreshold(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	// Poll every 60s with no status change.
	for i := 0; i <= 9; i++ {
		now := start.Add(time.Duration(i*60) * time.Second)
		report := tr.Update(now, []types.AgentRecord{watched(7, "Ada")})
		if i < 10 && now.Sub(start) < 600*time.Second {
			if len(report.ToAlert) != 0 {
				t.Fatalf("unexpected alert at t=%ds", i*60)
			}
		}
	}

	report := tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(7, "Ada")})
	if len(report.ToAlert) != 1 {
		t.Fatalf("expected alert at t=600s, got %v", report.ToAlert)
	}
	if report.ToAlert[0].AgentName != "Ada" || report.ToAlert[0].Duration != 600*time.Second {
		t.Fatalf("unexpected alert entry: %+v", report.ToAlert[0])
	}

	// Suppressed on the next cycle.
	report = tr.Update(start.Add(660*time.Second), []types.AgentRecord{watched(7, "Ada")})
	if len(report.ToAlert) != 0 {
		t.Fatalf("expected suppression at t=660s, got %v", report.ToAlert)
	}
	if len(report.Active) != 1 || report.Active[0].Duration != 660*time.Second {
		t.Fatalf("expected episode to keep accruing, got %+v", report.Active)
	}
}

func TestTrackerStartedAtStableAcrossPolls(t *testing.T) {
	start := time.Unix(1000, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(1, "Ada")})
	for i := 1; i <= 5; i++ {
		now := start.Add(time.Duration(i*60) * time.Second)
		report := tr.Update(now, []types.AgentRecord{watched(1, "Ada")})
		if want := now.Sub(start); report.Active[0].Duration != want {
			t.Fatalf("poll %d: duration %v, want %v", i, report.Active[0].Duration, want)
		}
	}
}

func TestTrackerStatusChangeResetsEpisode(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(3, "Grace")})
	report := tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(3, "Grace")})
	if len(report.ToAlert) != 1 {
		t.Fatalf("expected first alert")
	}

	// Status flips away at t=650, ledger and episode cleared.
	report = tr.Update(start.Add(650*time.Second), []types.AgentRecord{record(3, "Grace", types.StatusAvailable)})
	if len(report.Active) != 0 {
		t.Fatalf("expected episode deleted, got %+v", report.Active)
	}

	// Reappears watched at t=700: fresh episode, independent of the prior alert.
	report = tr.Update(start.Add(700*time.Second), []types.AgentRecord{watched(3, "Grace")})
	if len(report.Active) != 1 || report.Active[0].Duration != 0 {
		t.Fatalf("expected fresh episode, got %+v", report.Active)
	}
	report = tr.Update(start.Add(1300*time.Second), []types.AgentRecord{watched(3, "Grace")})
	if len(report.ToAlert) != 1 {
		t.Fatalf("expected second episode to alert independently, got %v", report.ToAlert)
	}
}

func TestTrackerAgentVanishingEndsEpisode(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(5, "Edsger"), watched(6, "Barbara")})
	report := tr.Update(start.Add(60*time.Second), []types.AgentRecord{watched(6, "Barbara")})
	if len(report.Active) != 1 || report.Active[0].AgentID != 6 {
		t.Fatalf("expected vanished agent removed, got %+v", report.Active)
	}
}

func TestTrackerAcknowledge(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(9, "Alan")})
	report := tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(9, "Alan")})
	if len(report.ToAlert) != 1 {
		t.Fatalf("expected alert before acknowledgment")
	}

	if !tr.Acknowledge(9) {
		t.Fatalf("expected acknowledgment to clear an outstanding entry")
	}
	if tr.Acknowledge(9) {
		t.Fatalf("expected repeated acknowledgment to be a no-op")
	}
	if tr.Acknowledge(12345) {
		t.Fatalf("expected acknowledgment of unknown agent to be a no-op")
	}

	// Acknowledged episode stays silent even while still over threshold.
	report = tr.Update(start.Add(700*time.Second), []types.AgentRecord{watched(9, "Alan")})
	if len(report.ToAlert) != 0 {
		t.Fatalf("expected acknowledged episode to stay silent, got %v", report.ToAlert)
	}
	if len(report.Active) != 1 || report.Active[0].Duration != 700*time.Second {
		t.Fatalf("expected episode untouched by acknowledgment, got %+v", report.Active)
	}
}

func TestTrackerExcludedAgentsNeverTracked(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600*time.Second, WithExcluded(map[int64]struct{}{2: {}}))

	report := tr.Update(start, []types.AgentRecord{watched(2, "Excluded"), watched(4, "Linus")})
	if len(report.Active) != 1 || report.Active[0].AgentID != 4 {
		t.Fatalf("expected excluded agent filtered, got %+v", report.Active)
	}
	report = tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(2, "Excluded"), watched(4, "Linus")})
	for _, s := range report.ToAlert {
		if s.AgentID == 2 {
			t.Fatalf("excluded agent must never alert")
		}
	}
}

func TestTrackerMalformedRecordsSkipped(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	report := tr.Update(start, []types.AgentRecord{
		{ID: 0, Name: "NoID", Status: types.StatusTransfersOnly},
		{ID: 11, Name: "", Status: types.StatusTransfersOnly},
		watched(12, "Ken"),
	})
	if len(report.Active) != 1 || report.Active[0].AgentID != 12 {
		t.Fatalf("expected malformed records skipped, got %+v", report.Active)
	}
}

func TestTrackerGlitchedRecordKeepsEpisodeAlive(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(7, "Ada")})
	report := tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(7, "Ada")})
	if len(report.ToAlert) != 1 {
		t.Fatalf("expected alert at threshold, got %v", report.ToAlert)
	}

	// One cycle returns the agent with the name field dropped. The record is
	// skipped but still identifies the agent, so the episode must survive.
	report = tr.Update(start.Add(660*time.Second), []types.AgentRecord{
		{ID: 7, Name: "", Status: types.StatusTransfersOnly},
	})
	if report.Skipped != 1 {
		t.Fatalf("expected one skipped record, got %d", report.Skipped)
	}
	if len(report.Active) != 1 || report.Active[0].Duration != 660*time.Second {
		t.Fatalf("expected episode to survive the glitch, got %+v", report.Active)
	}
	if len(report.ToAlert) != 0 {
		t.Fatalf("expected suppression to survive the glitch, got %v", report.ToAlert)
	}

	// Recovery next cycle: same episode, original start, still suppressed.
	report = tr.Update(start.Add(720*time.Second), []types.AgentRecord{watched(7, "Ada")})
	if len(report.Active) != 1 || report.Active[0].Duration != 720*time.Second {
		t.Fatalf("expected original start preserved, got %+v", report.Active)
	}
	if len(report.ToAlert) != 0 {
		t.Fatalf("expected no duplicate alert after recovery, got %v", report.ToAlert)
	}
}

func TestTrackerUnknownStatusLeavesEpisodeUntouched(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(7, "Ada")})

	// Availability unobserved for one cycle at t=300.
	report := tr.Update(start.Add(300*time.Second), []types.AgentRecord{
		record(7, "Ada", types.StatusUnknown),
	})
	if len(report.Active) != 1 || report.Active[0].Duration != 300*time.Second {
		t.Fatalf("expected episode untouched by unknown status, got %+v", report.Active)
	}

	// The episode keeps accruing across the gap and alerts with the full span.
	report = tr.Update(start.Add(600*time.Second), []types.AgentRecord{watched(7, "Ada")})
	if len(report.ToAlert) != 1 || report.ToAlert[0].Duration != 600*time.Second {
		t.Fatalf("expected alert spanning the unobserved cycle, got %v", report.ToAlert)
	}
}

func TestTrackerActiveSortedByDurationDescending(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600 * time.Second)

	tr.Update(start, []types.AgentRecord{watched(1, "Ada")})
	tr.Update(start.Add(60*time.Second), []types.AgentRecord{watched(1, "Ada"), watched(2, "Grace")})
	report := tr.Update(start.Add(120*time.Second), []types.AgentRecord{watched(1, "Ada"), watched(2, "Grace"), watched(3, "Alan")})

	if len(report.Active) != 3 {
		t.Fatalf("expected three active episodes, got %d", len(report.Active))
	}
	for i := 1; i < len(report.Active); i++ {
		if report.Active[i].Duration > report.Active[i-1].Duration {
			t.Fatalf("active list not sorted by duration descending: %+v", report.Active)
		}
	}
	if report.Active[0].AgentID != 1 || report.Active[2].AgentID != 3 {
		t.Fatalf("unexpected order: %+v", report.Active)
	}
}

func TestTrackerWatchedStatusOption(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	tr := New(600*time.Second, WithWatchedStatus(types.StatusOnCall))

	report := tr.Update(start, []types.AgentRecord{
		record(1, "Ada", types.StatusOnCall),
		record(2, "Grace", types.StatusTransfersOnly),
	})
	if len(report.Active) != 1 || report.Active[0].AgentID != 1 {
		t.Fatalf("expected only the configured status tracked, got %+v", report.Active)
	}
}
