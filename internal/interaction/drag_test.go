package interaction

import (
	"reflect"
	"testing"
	"time"

	"bookcal/internal/model"
)

func at(day, h, m int) time.Time {
	return time.Date(2024, 1, day, h, m, 0, 0, time.UTC)
}

func sample() model.CalendarEvent {
	return model.CalendarEvent{ID: "ev-1", Title: "Showing", Start: at(8, 14, 30), End: at(8, 15, 45)}
}

func TestDrag_DayDropKeepsTimeOfDayAndDuration(t *testing.T) {
	t.Parallel()

	var seen []string
	c := NewDragController(5)
	c.OnTransition = func(_, to DragState) { seen = append(seen, to.String()) }

	ev := sample()
	if !c.Press(ev, Point{X: 10, Y: 10}) {
		t.Fatal("press refused")
	}
	c.Move(Point{X: 40, Y: 10})
	c.Hover(DayTarget{Date: at(11, 0, 0)})

	d, ok := c.Draft()
	if !ok || !d.HasProposal || !d.ProposedStart.Equal(at(11, 14, 30)) {
		t.Fatalf("unexpected draft %+v", d)
	}

	commit, ok := c.Release(DayTarget{Date: at(11, 0, 0)})
	if !ok {
		t.Fatal("expected commit")
	}
	if !commit.Start.Equal(at(11, 14, 30)) || !commit.End.Equal(at(11, 15, 45)) {
		t.Errorf("unexpected interval %v - %v", commit.Start, commit.End)
	}
	if commit.End.Sub(commit.Start) != ev.Duration() {
		t.Errorf("duration changed")
	}
	if c.State() != DragIdle {
		t.Errorf("state after release = %s", c.State())
	}
	want := []string{"pressed", "dragging", "committing", "idle"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}

func TestDrag_SlotDropSnapsAndPreservesDuration(t *testing.T) {
	t.Parallel()

	c := NewDragController(5)
	ev := sample()
	c.Press(ev, Point{})
	c.Move(Point{Y: 100})

	commit, ok := c.Release(SlotTarget{Date: at(9, 0, 0), Hour: 9, Minute: 15})
	if !ok {
		t.Fatal("expected commit")
	}
	if !commit.Start.Equal(at(9, 9, 15)) || commit.End.Sub(commit.Start) != 75*time.Minute {
		t.Errorf("unexpected interval %v - %v", commit.Start, commit.End)
	}
}

func TestDrag_BelowThresholdIsAClick(t *testing.T) {
	t.Parallel()

	c := NewDragController(5)
	c.Press(sample(), Point{X: 10, Y: 10})
	c.Move(Point{X: 13, Y: 14}) // exactly 5px, not beyond
	if c.Dragging() {
		t.Fatal("drag should not activate at the threshold")
	}
	if _, ok := c.Release(DayTarget{Date: at(12, 0, 0)}); ok {
		t.Fatal("a click must not commit")
	}
	if c.Active() {
		t.Fatal("controller should be idle")
	}
}

func TestDrag_ReleaseOutsideTargetCancels(t *testing.T) {
	t.Parallel()

	var seen []DragState
	c := NewDragController(2)
	c.OnTransition = func(_, to DragState) { seen = append(seen, to) }
	c.Press(sample(), Point{})
	c.Move(Point{X: 50})
	if _, ok := c.Release(nil); ok {
		t.Fatal("release without target must not commit")
	}
	if seen[len(seen)-2] != DragCancelled || c.State() != DragIdle {
		t.Fatalf("transitions = %v", seen)
	}
}

func TestDrag_ExplicitCancel(t *testing.T) {
	t.Parallel()

	c := NewDragController(2)
	c.Press(sample(), Point{})
	c.Move(Point{X: 50})
	c.Cancel()
	if c.Active() {
		t.Fatal("cancel should return to idle")
	}
	if _, ok := c.Draft(); ok {
		t.Fatal("draft must be discarded")
	}
}

func TestDrag_OnlyOneActive(t *testing.T) {
	t.Parallel()

	c := NewDragController(2)
	c.Press(sample(), Point{})
	other := sample()
	other.ID = "ev-2"
	if c.Press(other, Point{}) {
		t.Fatal("second press must be refused")
	}
	ev, _ := c.Event()
	if ev.ID != "ev-1" {
		t.Fatalf("captured event changed to %q", ev.ID)
	}
}

func TestDrag_InstanceResolvesToTemplate(t *testing.T) {
	t.Parallel()

	inst := sample()
	inst.RecurrenceID = "tpl"
	inst.ID = model.InstanceRef{TemplateID: "tpl", OccurrenceStart: inst.Start}.ID()

	c := NewDragController(2)
	c.Press(inst, Point{})
	c.Move(Point{X: 10})
	commit, ok := c.Release(DayTarget{Date: at(10, 0, 0)})
	if !ok || commit.EventID != "tpl" {
		t.Fatalf("commit = %+v, %v", commit, ok)
	}
}

func TestDrag_AllDayRejectsSlot(t *testing.T) {
	t.Parallel()

	ev := model.CalendarEvent{ID: "holiday", Start: at(8, 0, 0), End: at(9, 0, 0), AllDay: true}
	c := NewDragController(2)
	c.Press(ev, Point{})
	c.Move(Point{X: 10})
	if _, ok := c.Release(SlotTarget{Date: at(10, 0, 0), Hour: 9}); ok {
		t.Fatal("all-day event must not drop onto a time slot")
	}

	c.Press(ev, Point{})
	c.Move(Point{X: 10})
	commit, ok := c.Release(DayTarget{Date: at(10, 0, 0)})
	if !ok || !commit.Start.Equal(at(10, 0, 0)) || !commit.End.Equal(at(11, 0, 0)) {
		t.Fatalf("day drop of all-day event = %+v, %v", commit, ok)
	}
}

func TestDecodeDropTarget(t *testing.T) {
	t.Parallel()

	got, err := DecodeDropTarget([]byte(`{"type":"slot","date":"2024-01-05","hour":9,"minute":30}`), time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := SlotTarget{Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), Hour: 9, Minute: 30}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	day, err := DecodeDropTarget([]byte(`{"type":"day","date":"2024-01-06"}`), time.UTC)
	if err != nil {
		t.Fatalf("decode day: %v", err)
	}
	if _, ok := day.(DayTarget); !ok {
		t.Fatalf("expected DayTarget, got %T", day)
	}

	raw, err := EncodeDropTarget(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeDropTarget(raw, time.UTC)
	if err != nil || back != want {
		t.Fatalf("round trip = %+v, %v", back, err)
	}

	bad := []string{
		`{"type":"week","date":"2024-01-05"}`,
		`{"type":"slot","date":"2024-01-05"}`,
		`{"type":"slot","date":"2024-01-05","hour":24}`,
		`{"type":"day","date":"05/01/2024"}`,
		`not json`,
	}
	for _, b := range bad {
		if _, err := DecodeDropTarget([]byte(b), time.UTC); err == nil {
			t.Errorf("expected error for %s", b)
		}
	}
}
