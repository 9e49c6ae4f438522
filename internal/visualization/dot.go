// Package visualization renders the continuation lineage of stored runs.
package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/synthlik/internal/store"
)

// Format specifies the output format for lineage rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// samplerColors maps sampler kinds to DOT colors.
var samplerColors = map[string]string{
	"rwm":  "steelblue",
	"ula":  "mediumseagreen",
	"rula": "goldenrod",
}

// Render writes the lineage of every stored run in format.
func Render(ctx context.Context, runs store.RunStore, format Format) (string, error) {
	recs, err := runs.ListRuns(ctx, 0)
	if err != nil {
		return "", fmt.Errorf("list runs: %w", err)
	}
	switch format {
	case FormatDOT, "":
		return DOT(recs), nil
	case FormatJSON:
		return JSON(recs)
	default:
		return "", fmt.Errorf("unknown format %q (want dot or json)", format)
	}
}

// DOT produces a Graphviz digraph with one node per run and an edge from
// each parent run to its continuation. Parents that are no longer stored
// are drawn dashed.
func DOT(recs []store.RunRecord) string {
	recs = oldestFirst(recs)
	known := make(map[string]bool, len(recs))
	for _, r := range recs {
		known[r.ID] = true
	}

	var b strings.Builder
	b.WriteString("digraph synthlik {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n\n")

	missing := make(map[string]bool)
	for _, r := range recs {
		color := samplerColors[r.Sampler]
		if color == "" {
			color = "lightgray"
		}
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, tooltip=%q];\n",
			r.ID, nodeLabel(r), color, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		if r.ParentID != "" && !known[r.ParentID] {
			missing[r.ParentID] = true
		}
	}
	for _, id := range sortedKeys(missing) {
		fmt.Fprintf(&b, "  %q [label=%q, style=dashed];\n", id, shortID(id))
	}
	b.WriteString("\n")

	for _, r := range recs {
		if r.ParentID != "" {
			fmt.Fprintf(&b, "  %q -> %q;\n", r.ParentID, r.ID)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// JSON produces the lineage as nodes and edges arrays.
func JSON(recs []store.RunRecord) (string, error) {
	recs = oldestFirst(recs)

	nodes := make([]map[string]any, 0, len(recs))
	edges := make([]map[string]any, 0)
	for _, r := range recs {
		node := map[string]any{
			"id":        r.ID,
			"model":     r.Model,
			"objective": r.Objective,
			"sampler":   r.Sampler,
			"steps":     r.Steps,
		}
		if r.AcceptanceRate != nil {
			node["acceptance_rate"] = *r.AcceptanceRate
		}
		nodes = append(nodes, node)
		if r.ParentID != "" {
			edges = append(edges, map[string]any{"source": r.ParentID, "target": r.ID})
		}
	}
	data, err := json.MarshalIndent(map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// Chain returns the IDs from the root of id's lineage down to id.
func Chain(recs []store.RunRecord, id string) []string {
	parent := make(map[string]string, len(recs))
	for _, r := range recs {
		parent[r.ID] = r.ParentID
	}
	var chain []string
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; cur = parent[cur] {
		seen[cur] = true
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func nodeLabel(r store.RunRecord) string {
	label := fmt.Sprintf("%s\n%s %s\n%d steps", shortID(r.ID), r.Model, r.Sampler, r.Steps)
	if r.AcceptanceRate != nil {
		label += fmt.Sprintf("\naccept %.2f", *r.AcceptanceRate)
	}
	return label
}

func oldestFirst(recs []store.RunRecord) []store.RunRecord {
	out := append([]store.RunRecord(nil), recs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shortID truncates a run ID for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
