//go:build ignore

// Command generate-graph writes a synthetic Logseq graph for profiling
// imports and sync.
//
// Usage: go run scripts/generate-graph.go -pages 1000 -journals 365 -output testdata/graph
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numPages    = flag.Int("pages", 1000, "Number of pages to generate")
	numJournals = flag.Int("journals", 365, "Number of journal days to generate")
	maxDepth    = flag.Int("depth", 4, "Maximum block nesting depth")
	outputDir   = flag.String("output", "testdata/graph", "Graph root to write")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var (
	topics = []string{
		"gardening", "compilers", "coffee", "climbing", "databases", "typography",
		"woodworking", "astronomy", "cooking", "networking", "music", "finance",
	}
	words = []string{
		"notes", "idea", "question", "summary", "draft", "reading", "follow up",
		"reference", "example", "review", "plan", "open issue", "quote",
	}
	hosts = []string{
		"example.com", "docs.example.org", "blog.example.net", "wiki.example.io",
	}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, dir := range []string{"pages", "journals"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, dir), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	titles := make([]string, *numPages)
	for i := range titles {
		titles[i] = fmt.Sprintf("%s %s %d", capitalize(pick(rng, topics)), pick(rng, words), i)
	}

	var blocks int
	for _, title := range titles {
		text, n := page(rng, titles)
		path := filepath.Join(*outputDir, "pages", title+".md")
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		blocks += n
	}

	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < *numJournals; i++ {
		text, n := page(rng, titles)
		path := filepath.Join(*outputDir, "journals", day.AddDate(0, 0, i).Format("2006_01_02")+".md")
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		blocks += n
	}

	fmt.Printf("Generated %d pages and %d journals (%d blocks) in %s\n",
		*numPages, *numJournals, blocks, *outputDir)
}

// page returns an outline of 3 to 12 top-level blocks and its block count.
func page(rng *rand.Rand, titles []string) (string, int) {
	var b strings.Builder
	n := 0
	for i, top := 0, 3+rng.Intn(10); i < top; i++ {
		n += outline(&b, rng, titles, 0)
	}
	return b.String(), n
}

func outline(b *strings.Builder, rng *rand.Rand, titles []string, depth int) int {
	b.WriteString(strings.Repeat("\t", depth))
	b.WriteString("- ")
	b.WriteString(content(rng, titles))
	b.WriteByte('\n')

	n := 1
	if depth+1 < *maxDepth && rng.Intn(3) == 0 {
		for i, kids := 0, 1+rng.Intn(3); i < kids; i++ {
			n += outline(b, rng, titles, depth+1)
		}
	}
	return n
}

func content(rng *rand.Rand, titles []string) string {
	parts := []string{pick(rng, words), "on", pick(rng, topics)}
	switch rng.Intn(6) {
	case 0:
		parts = append(parts, fmt.Sprintf("https://%s/%s/%d", pick(rng, hosts), pick(rng, topics), rng.Intn(500)))
	case 1:
		parts = append(parts, "[["+pick(rng, titles)+"]]")
	case 2:
		parts = append(parts, "#"+pick(rng, topics))
	case 3:
		parts = append(parts, "[["+pick(rng, titles)+"]]",
			fmt.Sprintf("https://%s/%d", pick(rng, hosts), rng.Intn(500)))
	}
	return strings.Join(parts, " ")
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.Intn(len(from))]
}

func capitalize(s string) string {
	return strings.ToUpper(s[:1]) + s[1:]
}
