package visualization

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/synthlik/internal/store"
)

func lineage() []store.RunRecord {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rate := 0.25
	// Newest first, as ListRuns returns them.
	return []store.RunRecord{
		{ID: "cccccccccccccccc", Model: "gaussian", Sampler: "rula", Steps: 50, ParentID: "bbbbbbbbbbbbbbbb", CreatedAt: t0.Add(2 * time.Minute)},
		{ID: "dddddddddddddddd", Model: "ricker", Sampler: "ula", Steps: 10, ParentID: "gone0000gone0000", CreatedAt: t0.Add(time.Minute + time.Second)},
		{ID: "bbbbbbbbbbbbbbbb", Model: "gaussian", Sampler: "rula", Steps: 100, ParentID: "aaaaaaaaaaaaaaaa", CreatedAt: t0.Add(time.Minute)},
		{ID: "aaaaaaaaaaaaaaaa", Model: "gaussian", Sampler: "rwm", Steps: 100, AcceptanceRate: &rate, CreatedAt: t0},
	}
}

func TestDOT(t *testing.T) {
	dot := DOT(lineage())

	if !strings.HasPrefix(dot, "digraph synthlik {") || !strings.HasSuffix(dot, "}\n") {
		t.Fatalf("not a digraph:\n%s", dot)
	}
	for _, want := range []string{
		`"aaaaaaaaaaaaaaaa" -> "bbbbbbbbbbbbbbbb";`,
		`"bbbbbbbbbbbbbbbb" -> "cccccccccccccccc";`,
		`"gone0000gone0000" -> "dddddddddddddddd";`,
		`"gone0000gone0000" [label="gone0000", style=dashed];`,
		`fillcolor="steelblue"`,
		`accept 0.25`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}

	// Oldest run is declared first.
	if strings.Index(dot, `"aaaaaaaaaaaaaaaa" [`) > strings.Index(dot, `"cccccccccccccccc" [`) {
		t.Errorf("nodes not in creation order:\n%s", dot)
	}
}

func TestDOT_Empty(t *testing.T) {
	dot := DOT(nil)
	if strings.Contains(dot, "->") {
		t.Errorf("empty lineage has edges:\n%s", dot)
	}
}

func TestJSON(t *testing.T) {
	out, err := JSON(lineage())
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}

	var got struct {
		Nodes []struct {
			ID             string   `json:"id"`
			AcceptanceRate *float64 `json:"acceptance_rate"`
		} `json:"nodes"`
		Edges []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"edges"`
		NodeCount int `json:"node_count"`
		EdgeCount int `json:"edge_count"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if got.NodeCount != 4 || got.EdgeCount != 3 {
		t.Errorf("counts = %d nodes, %d edges; want 4, 3", got.NodeCount, got.EdgeCount)
	}
	if got.Nodes[0].ID != "aaaaaaaaaaaaaaaa" || got.Nodes[0].AcceptanceRate == nil {
		t.Errorf("first node = %+v", got.Nodes[0])
	}
}

func TestChain(t *testing.T) {
	recs := lineage()

	got := Chain(recs, "cccccccccccccccc")
	want := []string{"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb", "cccccccccccccccc"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Chain = %v, want %v", got, want)
	}

	if got := Chain(recs, "dddddddddddddddd"); len(got) != 2 || got[0] != "gone0000gone0000" {
		t.Errorf("Chain with missing parent = %v", got)
	}
}

func TestRender(t *testing.T) {
	s, err := store.NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	out, err := Render(ctx, s, FormatDOT)
	if err != nil {
		t.Fatalf("Render dot: %v", err)
	}
	if !strings.HasPrefix(out, "digraph") {
		t.Errorf("unexpected dot output: %q", out)
	}

	out, err = Render(ctx, s, FormatJSON)
	if err != nil {
		t.Fatalf("Render json: %v", err)
	}
	if !strings.Contains(out, `"node_count": 0`) {
		t.Errorf("unexpected json output: %q", out)
	}

	if _, err := Render(ctx, s, "svg"); err == nil {
		t.Error("expected error for unknown format")
	}
}
