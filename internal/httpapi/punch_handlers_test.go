package httpapi

import (
	"context"
	"net/http"
	"testing"

	"pontual.org/internal/facial"
	"pontual.org/internal/punch"
)

type stubMatcher struct {
	employeeID int64
	similarity float64
}

func (s *stubMatcher) Recognize(ctx context.Context, photo []byte, threshold float64) (facial.Match, error) {
	return facial.Match{EmployeeID: s.employeeID, Similarity: s.similarity, Recognized: true}, nil
}

func registerPunchFor(t *testing.T, env *testEnv, employeeID int64) *punch.Punch {
	t.Helper()
	p := &punch.Punch{EmployeeID: employeeID, Type: punch.TypeIn, Method: punch.MethodCode}
	if err := env.engine.Register(context.Background(), p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return p
}

func TestPunchByCodeEndpoint(t *testing.T) {
	env := newTestAPI(t)

	w := env.do(t, http.MethodPost, "/punch/code", "", map[string]any{
		"type": "entrada", "code": "1001",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID        string `json:"id"`
		NSR       int64  `json:"nsr"`
		Hash      string `json:"hash"`
		PunchTime string `json:"punch_time"`
	}
	decodeBody(t, w, &resp)
	if resp.NSR != 1 || len(resp.Hash) != 64 || resp.ID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPunchUnknownCodeIs404(t *testing.T) {
	env := newTestAPI(t)
	w := env.do(t, http.MethodPost, "/punch/code", "", map[string]any{
		"type": "entrada", "code": "0000",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestPunchDuplicateIs429(t *testing.T) {
	env := newTestAPI(t)
	body := map[string]any{"type": "entrada", "code": "1001"}

	if w := env.do(t, http.MethodPost, "/punch/code", "", body); w.Code != http.StatusCreated {
		t.Fatalf("first punch: %d", w.Code)
	}
	body["type"] = "saida"
	if w := env.do(t, http.MethodPost, "/punch/code", "", body); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second punch should be 429, got %d", w.Code)
	}
}

func TestPunchGenericDispatch(t *testing.T) {
	env := newTestAPI(t)

	w := env.do(t, http.MethodPost, "/punch", "", map[string]any{
		"method": "codigo", "type": "entrada", "code": "1001",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/punch", "", map[string]any{
		"method": "telepathy", "type": "entrada",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown method should be 400, got %d", w.Code)
	}
}

func TestPunchVerifyOwner(t *testing.T) {
	env := newTestAPI(t)
	p := registerPunchFor(t, env, 1)

	jwt := env.loginJWT(t, "ana@example.com")
	w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", jwt, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner verify: status %d", w.Code)
	}
	var resp struct {
		NSR     int64  `json:"nsr"`
		Hash    string `json:"hash"`
		IsValid bool   `json:"is_valid"`
	}
	decodeBody(t, w, &resp)
	if !resp.IsValid || resp.NSR != p.NSR || resp.Hash != p.Hash {
		t.Fatalf("unexpected verify response: %+v", resp)
	}
}

func TestPunchVerifyTamperedRecord(t *testing.T) {
	env := newTestAPI(t)
	p := registerPunchFor(t, env, 1)
	env.punches.Tamper(p.ID, punch.TypeOut)

	jwt := env.loginJWT(t, "ana@example.com")
	w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", jwt, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		IsValid bool `json:"is_valid"`
	}
	decodeBody(t, w, &resp)
	if resp.IsValid {
		t.Fatal("tampered record must report is_valid=false")
	}
}

func TestPunchVerifyDepartmentScope(t *testing.T) {
	env := newTestAPI(t)
	// Punch belongs to Iara (employee 5, Engenharia).
	p := registerPunchFor(t, env, 5)

	// Manager of Vendas: cross-department, 403 plus a security audit row.
	salesManager := env.loginJWT(t, "gustavo@example.com")
	w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", salesManager, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-department verify should be 403, got %d", w.Code)
	}
	denied := false
	for _, e := range env.sink.Entries() {
		if e.Action == "ACCESS_DENIED" && e.ResourceID == p.ID {
			denied = true
		}
	}
	if !denied {
		t.Fatal("cross-department attempt must produce a security audit entry")
	}

	// Manager of Engenharia: same department, allowed.
	engManager := env.loginJWT(t, "helena@example.com")
	if w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", engManager, nil); w.Code != http.StatusOK {
		t.Fatalf("same-department manager should pass, got %d", w.Code)
	}

	// Admin sees everything.
	admin := env.loginJWT(t, "root@example.com")
	if w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("admin should pass, got %d", w.Code)
	}

	// Unrelated employee from another department: 403.
	ana := env.loginJWT(t, "ana@example.com")
	if w := env.do(t, http.MethodGet, "/punch/"+p.ID+"/verify", ana, nil); w.Code != http.StatusForbidden {
		t.Fatalf("unrelated employee should be 403, got %d", w.Code)
	}
}

func TestPunchVerifyUnknownID(t *testing.T) {
	env := newTestAPI(t)
	jwt := env.loginJWT(t, "ana@example.com")
	w := env.do(t, http.MethodGet, "/punch/does-not-exist/verify", jwt, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestPunchToday(t *testing.T) {
	env := newTestAPI(t)
	registerPunchFor(t, env, 1)
	registerPunchFor(t, env, 5) // someone else's punch

	jwt := env.loginJWT(t, "ana@example.com")
	w := env.do(t, http.MethodGet, "/punch/today", jwt, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Punches []struct {
			NSR int64 `json:"nsr"`
		} `json:"punches"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Punches) != 1 {
		t.Fatalf("expected only the caller's punches, got %d", len(resp.Punches))
	}
}

func TestPunchGeofencesListing(t *testing.T) {
	env := newTestAPI(t)
	jwt := env.loginJWT(t, "ana@example.com")

	// Inside the active zone: inactive zones are hidden and the distance
	// is reported.
	w := env.do(t, http.MethodGet, "/punch/geofences?latitude=-23.5505&longitude=-46.6333", jwt, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Zones []struct {
			ID        string   `json:"id"`
			DistanceM *float64 `json:"distance_m"`
			Within    *bool    `json:"within"`
		} `json:"zones"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Zones) != 1 || resp.Zones[0].ID != "hq" {
		t.Fatalf("expected only the active zone, got %+v", resp.Zones)
	}
	if resp.Zones[0].Within == nil || !*resp.Zones[0].Within {
		t.Fatal("caller at the zone center must be within")
	}
	if resp.Zones[0].DistanceM == nil || *resp.Zones[0].DistanceM != 0 {
		t.Fatalf("distance at center must be 0, got %v", resp.Zones[0].DistanceM)
	}

	// Without coordinates the per-caller fields are omitted. Reset the
	// decode target: json.Unmarshal reuses slice elements, which would
	// leave the pointer fields from the first response populated.
	resp.Zones = nil
	w = env.do(t, http.MethodGet, "/punch/geofences", jwt, nil)
	decodeBody(t, w, &resp)
	if len(resp.Zones) != 1 || resp.Zones[0].Within != nil {
		t.Fatalf("no within field expected without a point, got %+v", resp.Zones)
	}
}

func TestFacialPunchWithForeignToken(t *testing.T) {
	matcher := &stubMatcher{employeeID: 1, similarity: 0.95}
	env := newTestAPI(t, punch.WithFaceMatcher(matcher, 0.40))

	// Authenticated as Iara (5), face matches Ana (1): rejected, nothing
	// recorded.
	iara := env.loginJWT(t, "iara@example.com")
	w := env.do(t, http.MethodPost, "/punch/face", iara, map[string]any{
		"type": "entrada", "photo": "anVzdC1hLXRlc3Q=",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("identity mismatch should be 403, got %d body %s", w.Code, w.Body.String())
	}
	if last, _ := env.punches.LastNSR(context.Background()); last != 0 {
		t.Fatal("no punch may be recorded on identity mismatch")
	}
}
