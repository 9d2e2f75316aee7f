package interaction

import (
	"testing"
	"time"

	"bookcal/internal/layout"
	"bookcal/internal/model"
)

var grid = layout.Grid{HourHeight: 60, EndHour: 24, MinHeight: 20}

func TestResize_GrowsEndKeepsStart(t *testing.T) {
	t.Parallel()

	ev := sample() // 14:30 - 15:45
	c := NewResizeController(grid, 15*time.Minute, 0)
	if !c.Press(ev, Point{Y: 300}) {
		t.Fatal("press refused")
	}
	c.Move(Point{Y: 345}) // +45px = +45min

	end, ok := c.Preview()
	if !ok || !end.Equal(at(8, 16, 30)) {
		t.Fatalf("preview = %v, %v", end, ok)
	}
	if got := c.Apply(ev); !got.End.Equal(end) || !got.Start.Equal(ev.Start) {
		t.Fatalf("Apply = %+v", got)
	}
	if !ev.End.Equal(at(8, 15, 45)) {
		t.Fatal("input event mutated")
	}

	commit, ok := c.Release()
	if !ok {
		t.Fatal("expected commit")
	}
	if !commit.Start.Equal(ev.Start) {
		t.Errorf("start changed to %v", commit.Start)
	}
	if !commit.End.Equal(at(8, 16, 30)) {
		t.Errorf("end = %v", commit.End)
	}
	if c.Active() {
		t.Error("controller should be idle")
	}
}

func TestResize_FloorClamps(t *testing.T) {
	t.Parallel()

	ev := sample()
	c := NewResizeController(grid, 30*time.Minute, 0)
	c.Press(ev, Point{Y: 300})
	c.Move(Point{Y: 0}) // far above the start

	commit, _ := c.Release()
	if commit.End.Before(ev.Start.Add(30 * time.Minute)) {
		t.Fatalf("end %v crossed the floor", commit.End)
	}
	if !commit.End.Equal(ev.Start.Add(30 * time.Minute)) {
		t.Fatalf("end should clamp to the floor, got %v", commit.End)
	}
}

func TestResize_SnapsToGridUnit(t *testing.T) {
	t.Parallel()

	ev := sample() // ends 15:45
	c := NewResizeController(grid, 15*time.Minute, 15*time.Minute)
	c.Press(ev, Point{Y: 0})
	c.Move(Point{Y: 20}) // +20min -> 16:05, snaps to 16:00

	end, _ := c.Preview()
	if !end.Equal(at(8, 16, 0)) {
		t.Fatalf("snapped end = %v", end)
	}
}

func TestResize_ReleaseWithoutMovementCommitsClampedEnd(t *testing.T) {
	t.Parallel()

	short := model.CalendarEvent{ID: "blip", Start: at(8, 9, 0), End: at(8, 9, 0)}
	var seen []ResizeState
	c := NewResizeController(grid, 15*time.Minute, 0)
	c.OnTransition = func(_, to ResizeState) { seen = append(seen, to) }

	c.Press(short, Point{})
	commit, ok := c.Release()
	if !ok || !commit.End.Equal(at(8, 9, 15)) {
		t.Fatalf("commit = %+v, %v", commit, ok)
	}
	want := []ResizeState{ResizeResizing, ResizeCommitting, ResizeIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v", seen)
		}
	}
}

func TestResize_RefusesAllDayAndConcurrent(t *testing.T) {
	t.Parallel()

	c := NewResizeController(grid, 15*time.Minute, 0)
	if c.Press(model.CalendarEvent{ID: "h", AllDay: true, Start: at(8, 0, 0), End: at(9, 0, 0)}, Point{}) {
		t.Fatal("all-day events have no resize handle")
	}
	c.Press(sample(), Point{})
	if c.Press(model.CalendarEvent{ID: "other", Start: at(8, 1, 0), End: at(8, 2, 0)}, Point{}) {
		t.Fatal("second resize must be refused")
	}
	if c.ResizingID() != "ev-1" {
		t.Fatalf("resizing id = %q", c.ResizingID())
	}
	if _, ok := (&ResizeController{}).Release(); ok {
		t.Fatal("idle release must not commit")
	}
}

func TestResize_InstanceResolvesToTemplate(t *testing.T) {
	t.Parallel()

	inst := sample()
	inst.RecurrenceID = "tpl"
	inst.ID = "tpl@20240108T143000"
	c := NewResizeController(grid, 15*time.Minute, 0)
	c.Press(inst, Point{})
	c.Move(Point{Y: 60})
	commit, _ := c.Release()
	if commit.EventID != "tpl" {
		t.Fatalf("commit id = %q", commit.EventID)
	}
}
