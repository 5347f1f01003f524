// Package loader reads mapper and configuration documents from disk and turns
// them into core.Fragment trees for pkg/builder.
//
// Two formats are understood: YAML documents (.yaml, .yml) and single
// statement SQL files (.sql) carrying YAML frontmatter.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// maxParallelReads bounds concurrent document reads in LoadAll.
const maxParallelReads = 8

// FileLoader loads resources relative to Root.
type FileLoader struct {
	// Root resolves relative resource names, "" means the working directory
	Root string
}

// Path returns the file a resource name refers to.
func (l FileLoader) Path(resource string) string {
	if filepath.IsAbs(resource) || l.Root == "" {
		return resource
	}
	return filepath.Join(l.Root, resource)
}

// Load implements builder.Loader.
func (l FileLoader) Load(ctx context.Context, resource string) (*core.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.Path(resource)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(resource, data)
}

// Parse picks the document format from the resource extension.
func Parse(resource string, data []byte) (*core.Fragment, error) {
	switch strings.ToLower(filepath.Ext(resource)) {
	case ".yaml", ".yml":
		return ParseYAML(resource, data)
	case ".sql":
		return ParseStatementFile(resource, data)
	default:
		return nil, &ParseError{File: resource, Message: fmt.Sprintf("unsupported document type %q", filepath.Ext(resource))}
	}
}

// Document is a loaded resource.
type Document struct {
	Resource string
	Root     *core.Fragment
}

// LoadAll reads resources concurrently. Documents come back in the order of
// resources; the first error cancels the remaining reads.
func (l FileLoader) LoadAll(ctx context.Context, resources []string) ([]Document, error) {
	docs := make([]Document, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, resource := range resources {
		g.Go(func() error {
			root, err := l.Load(gctx, resource)
			if err != nil {
				return fmt.Errorf("loading %s: %w", resource, err)
			}
			docs[i] = Document{Resource: resource, Root: root}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Discover expands glob patterns relative to Root into a sorted, de-duplicated
// list of resource names. Patterns without glob characters are kept as is.
func (l FileLoader) Discover(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(resource string) {
		if !seen[resource] {
			seen[resource] = true
			out = append(out, resource)
		}
	}
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			add(pattern)
			continue
		}
		matches, err := filepath.Glob(l.Path(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid mapper pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if l.Root != "" && !filepath.IsAbs(pattern) {
				if rel, err := filepath.Rel(l.Root, m); err == nil {
					m = rel
				}
			}
			add(m)
		}
	}
	sort.Strings(out)
	return out, nil
}
