package store

import (
	"encoding/json"
	"errors"
	"testing"
)

const testDiagram = `<svg xmlns="http://www.w3.org/2000/svg"><path id="start_1" d="M0 0 L10 0 L10 10 Z"/></svg>`

func createWall(t *testing.T, s *Store, name string) *Wall {
	t.Helper()
	w := &Wall{Name: name, Diagram: testDiagram}
	if err := s.Walls().Create(w); err != nil {
		t.Fatalf("create wall: %v", err)
	}
	return w
}

func TestWallRepository_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Walls()

	w := createWall(t, s, "north face")
	if w.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	got, err := repo.GetByID(w.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "north face" || got.Diagram != testDiagram {
		t.Errorf("unexpected wall: %+v", got)
	}

	byName, err := repo.GetByName("north face")
	if err != nil || byName.ID != w.ID {
		t.Fatalf("GetByName: %v, %+v", err, byName)
	}

	createWall(t, s, "cave")
	walls, err := repo.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(walls) != 2 {
		t.Fatalf("got %d walls, want 2", len(walls))
	}
	for _, lw := range walls {
		if lw.Diagram != "" {
			t.Error("List should not load diagrams")
		}
	}

	if err := repo.UpdateDiagram(w.ID, "<svg/>"); err != nil {
		t.Fatalf("UpdateDiagram: %v", err)
	}
	got, _ = repo.GetByID(w.ID)
	if got.Diagram != "<svg/>" {
		t.Errorf("diagram not updated: %q", got.Diagram)
	}

	if err := repo.Delete(w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete(w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
	if err := repo.UpdateDiagram("missing", "<svg/>"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDiagram missing: got %v, want ErrNotFound", err)
	}
}

func TestWallRepository_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	createWall(t, s, "board")
	if err := s.Walls().Create(&Wall{Name: "board", Diagram: testDiagram}); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestCalibrationRepository_Latest(t *testing.T) {
	s := newTestStore(t)
	w := createWall(t, s, "board")
	repo := s.Calibrations()

	if _, err := repo.Latest(w.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest on empty: got %v, want ErrNotFound", err)
	}

	first := &Calibration{WallID: w.ID, Matrix: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, HandExtensionPercent: 20}
	second := &Calibration{WallID: w.ID, Matrix: [3][3]float64{{300, 0, -50}, {0, 300, -50}, {0, 0, 1}}, HandExtensionPercent: 15}
	for _, c := range []*Calibration{first, second} {
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.Latest(w.ID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.ID != second.ID || got.Matrix != second.Matrix || got.HandExtensionPercent != 15 {
		t.Errorf("Latest = %+v, want second calibration", got)
	}
}

func TestCalibrationRepository_RequiresWall(t *testing.T) {
	s := newTestStore(t)
	err := s.Calibrations().Create(&Calibration{WallID: "nope"})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestRouteRepository(t *testing.T) {
	s := newTestStore(t)
	w := createWall(t, s, "board")
	repo := s.Routes()

	rt := &Route{WallID: w.ID, Name: "warmup", Holds: json.RawMessage(`[{"id":"start_1","type":"start"}]`)}
	if err := repo.Create(rt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	empty := &Route{WallID: w.ID, Name: "all"}
	if err := repo.Create(empty); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(rt.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(got.Holds) != string(rt.Holds) {
		t.Errorf("holds = %s, want %s", got.Holds, rt.Holds)
	}

	list, err := repo.ListByWall(w.ID)
	if err != nil {
		t.Fatalf("ListByWall: %v", err)
	}
	if len(list) != 2 || list[0].Name != "all" || string(list[0].Holds) != "[]" {
		t.Errorf("unexpected routes: %+v", list)
	}

	// Deleting the wall cascades.
	if err := s.Walls().Delete(w.ID); err != nil {
		t.Fatalf("delete wall: %v", err)
	}
	if _, err := repo.GetByID(rt.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("route should be gone with its wall, got %v", err)
	}
}

func TestSessionRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{
		ID:        "c0ffee00-0000-4000-8000-000000000001",
		Status:    "completed",
		StartTime: "2026-03-01T10:00:00.000Z",
		EndTime:   "2026-03-01T10:05:00.000Z",
		Record:    json.RawMessage(`{"session":{"status":"completed"}}`),
	}
	if err := repo.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	pending := &Session{ID: "c0ffee00-0000-4000-8000-000000000002", Status: "pending", Record: json.RawMessage(`{}`)}
	if err := repo.Save(pending); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StartTime != sess.StartTime || got.EndTime != sess.EndTime || got.WallID != "" {
		t.Errorf("unexpected session: %+v", got)
	}

	got, err = repo.GetByID(pending.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StartTime != "" || got.EndTime != "" {
		t.Errorf("null times should scan as empty: %+v", got)
	}

	all, err := repo.List(0)
	if err != nil || len(all) != 2 {
		t.Fatalf("List(0) = %d, %v", len(all), err)
	}
	one, err := repo.List(1)
	if err != nil || len(one) != 1 {
		t.Fatalf("List(1) = %d, %v", len(one), err)
	}

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestStore_Problem(t *testing.T) {
	s := newTestStore(t)
	w := createWall(t, s, "board")
	other := createWall(t, s, "other")

	if _, err := s.Problem(w.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Problem without calibration: got %v, want ErrNotFound", err)
	}

	cal := &Calibration{WallID: w.ID, Matrix: [3][3]float64{{2, 0, 0}, {0, 2, 0}, {0, 0, 1}}, HandExtensionPercent: 20}
	if err := s.Calibrations().Create(cal); err != nil {
		t.Fatal(err)
	}
	rt := &Route{WallID: w.ID, Name: "r", Holds: json.RawMessage(`[{"id":"start_1"}]`)}
	foreign := &Route{WallID: other.ID, Name: "f"}
	for _, r := range []*Route{rt, foreign} {
		if err := s.Routes().Create(r); err != nil {
			t.Fatal(err)
		}
	}

	p, err := s.Problem(w.ID, "")
	if err != nil {
		t.Fatalf("Problem: %v", err)
	}
	if p.Route != nil || p.Wall.ID != w.ID {
		t.Errorf("unexpected problem: %+v", p)
	}

	doc, err := p.CalibrationJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"perspective_transform":[[2,0,0],[0,2,0],[0,0,1]],"hand_extension_percent":20}`
	if string(doc) != want {
		t.Errorf("CalibrationJSON = %s, want %s", doc, want)
	}

	p, err = s.Problem(w.ID, rt.ID)
	if err != nil || p.Route == nil || p.Route.ID != rt.ID {
		t.Fatalf("Problem with route: %+v, %v", p, err)
	}

	if _, err := s.Problem(w.ID, foreign.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("route from another wall: got %v, want ErrNotFound", err)
	}
	if _, err := s.Problem("missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing wall: got %v, want ErrNotFound", err)
	}
}
