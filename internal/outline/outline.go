// Package outline is the default implementation of the graphmodel.Graph
// collaborator: a parser/serializer for Logseq-style outline markdown
// files. The contract it satisfies (graphmodel.Graph) is the out-of-scope
// "markdown collaborator" spec §6 describes; this package is the concrete
// implementation the CLI wires in because the module cannot run end to end
// without one.
//
// Conventions, grounded on the indentation/property conventions documented
// in the original Python client's parsing helpers:
//   - a line beginning with "-" (after leading whitespace) starts a new
//     node; indentation width determines depth
//   - a line of the form "key:: value" immediately following a node's
//     opening line (or any of its continuation lines) is a property of
//     that node, not body text
//   - a bare "key:: value" line before the first bullet is a page-level
//     (document) property
//   - a file named YYYY-MM-DD.md is a journal page
package outline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kgraph/enrich/internal/graphmodel"
)

var (
	journalNamePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	propertyLinePattern = regexp.MustCompile(`^([a-zA-Z0-9_-]+)::\s*(.*)$`)
)

// systemDirs are skipped during the walk, matching Logseq's own reserved
// directories.
var systemDirs = map[string]bool{
	"logseq": true,
	".git":   true,
	"assets": true,
	".trash": true,
}

type FileGraph struct {
	root string
}

func NewFileGraph(root string) *FileGraph {
	return &FileGraph{root: root}
}

func (g *FileGraph) Documents() ([]graphmodel.Document, error) {
	var paths []string
	err := filepath.WalkDir(g.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path != g.root && systemDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	docs := make([]graphmodel.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := g.parseFile(p)
		if err != nil {
			// an unreadable file is skipped here without being logged;
			// parseFile only fails on I/O errors.
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (g *FileGraph) IsJournal(path string) bool {
	name := strings.TrimSuffix(filepath.Base(path), ".md")
	return journalNamePattern.MatchString(name)
}

func (g *FileGraph) parseFile(path string) (graphmodel.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return graphmodel.Document{}, err
	}
	defer f.Close()

	docID := path
	doc := graphmodel.Document{
		ID:         docID,
		Path:       path,
		IsJournal:  g.IsJournal(path),
		Properties: map[string]string{},
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var current *graphmodel.Node
	seenBullet := false
	idx := 0

	flush := func() {
		if current != nil {
			current.Body = strings.TrimRight(current.Body, "\n")
			doc.Nodes = append(doc.Nodes, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimLeft(line, " \t")

		if m := propertyLinePattern.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(trimmed, "-") {
			key, val := strings.ToLower(m[1]), m[2]
			if current != nil {
				current.Properties[key] = val
			} else if !seenBullet {
				doc.Properties[key] = val
			}
			continue
		}

		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			flush()
			seenBullet = true
			depth := indentDepth(line)
			body := strings.TrimPrefix(trimmed, "-")
			body = strings.TrimLeft(body, " ")
			idx++
			current = &graphmodel.Node{
				ID:         fmt.Sprintf("%s#%d", docID, idx),
				Body:       body,
				Properties: map[string]string{},
				DocumentID: docID,
				Depth:      depth,
			}
			continue
		}

		if trimmed == "" {
			continue
		}

		if current != nil {
			current.Body += "\n" + trimmed
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return graphmodel.Document{}, err
	}
	return doc, nil
}

// indentDepth counts leading whitespace units (a tab, or two spaces,
// counts as one level) before a bullet marker.
func indentDepth(line string) int {
	depth := 0
	i := 0
	for i < len(line) {
		switch line[i] {
		case '\t':
			depth++
			i++
		case ' ':
			spaces := 0
			for i < len(line) && line[i] == ' ' {
				spaces++
				i++
			}
			depth += spaces / 2
		default:
			return depth
		}
	}
	return depth
}

func (g *FileGraph) Write(doc graphmodel.Document) error {
	var sb strings.Builder
	for _, k := range sortedKeys(doc.Properties) {
		sb.WriteString(fmt.Sprintf("%s:: %s\n", k, doc.Properties[k]))
	}
	for _, n := range doc.Nodes {
		indent := strings.Repeat("\t", n.Depth)
		sb.WriteString(indent)
		sb.WriteString("- ")
		sb.WriteString(n.Body)
		sb.WriteString("\n")
		propIndent := strings.Repeat("\t", n.Depth+1)
		for _, k := range sortedKeys(n.Properties) {
			sb.WriteString(propIndent)
			sb.WriteString(fmt.Sprintf("%s:: %s\n", k, n.Properties[k]))
		}
	}

	existing, err := os.ReadFile(doc.Path)
	if err == nil && string(existing) == sb.String() {
		return nil // idempotent: no write when content is unchanged
	}

	return os.WriteFile(doc.Path, []byte(sb.String()), 0644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
