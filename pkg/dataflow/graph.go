package dataflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	dferrors "github.com/vnykmshr/dataflow/pkg/common/errors"
)

// GraphConfig configures a Graph.
type GraphConfig struct {
	// Name identifies the graph in logs.
	Name string

	// Logger receives graph events. Nil disables logging.
	Logger *zerolog.Logger
}

// edge records a link created through the graph together with the blocks
// it was created between.
type edge struct {
	link     Link
	from, to Block
}

// Graph keeps track of a set of blocks and the links between them. It
// holds bookkeeping only: blocks keep running independently of it.
type Graph struct {
	name string
	log  zerolog.Logger

	mu     sync.RWMutex
	blocks []Block
	member map[uuid.UUID]struct{}
	edges  []edge
}

// NewGraph creates an empty graph.
func NewGraph(config GraphConfig) *Graph {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = config.Logger.With().Str("graph", config.Name).Logger()
	}
	return &Graph{
		name:   config.Name,
		log:    logger,
		member: make(map[uuid.UUID]struct{}),
	}
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Add registers blocks as members. Adding a block twice is a no-op.
func (g *Graph) Add(blocks ...Block) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, b := range blocks {
		if _, ok := g.member[b.ID()]; ok {
			continue
		}
		g.member[b.ID()] = struct{}{}
		g.blocks = append(g.blocks, b)
	}
	return g
}

// Contains reports whether b is a member.
func (g *Graph) Contains(b Block) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.member[b.ID()]
	return ok
}

// Connect links source to target and records the link in g. Both blocks
// must already be members.
func Connect[T any](g *Graph, source Source[T], target Target[T], opts LinkOptions[T]) (Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range []Block{source, target} {
		if _, ok := g.member[b.ID()]; !ok {
			return nil, dferrors.NewOperationError("dataflow", "Connect", ErrNotMember).WithContext(b.Name())
		}
	}

	l := source.LinkTo(target, opts)
	g.edges = append(g.edges, edge{link: l, from: source, to: target})
	g.log.Debug().Str("source", source.Name()).Str("target", target.Name()).Msg("connected")
	return l, nil
}

// Unlink detaches l and forgets it.
func (g *Graph) Unlink(l Link) {
	l.Unlink()

	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.edges {
		if e.link == l {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return
		}
	}
}

// Blocks returns the members in the order they were added.
func (g *Graph) Blocks() []Block {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Block(nil), g.blocks...)
}

// Links returns the links created through the graph that can still deliver.
// Links whose source or target is terminal are left out.
func (g *Graph) Links() []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var links []Link
	for _, e := range g.edges {
		if e.link.Active() {
			links = append(links, e.link)
		}
	}
	return links
}

// Roots returns the members with no incoming links.
func (g *Graph) Roots() []Block {
	levels, err := g.Levels()
	if err == nil {
		if len(levels) == 0 {
			return nil
		}
		return levels[0]
	}

	// A cycle has no level order, but its roots are still well defined.
	g.mu.RLock()
	defer g.mu.RUnlock()
	inDegree := g.inDegreesLocked()
	var roots []Block
	for _, b := range g.blocks {
		if inDegree[b.ID()] == 0 {
			roots = append(roots, b)
		}
	}
	return roots
}

// Levels groups members by distance from the roots using Kahn's
// algorithm. Blocks in one level have no links between them. It returns
// ErrCycle if the active links form a cycle.
func (g *Graph) Levels() ([][]Block, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := g.inDegreesLocked()
	dependents := make(map[uuid.UUID][]Block)
	for _, e := range g.edges {
		if attached(e.link) {
			dependents[e.from.ID()] = append(dependents[e.from.ID()], e.to)
		}
	}

	var level []Block
	for _, b := range g.blocks {
		if inDegree[b.ID()] == 0 {
			level = append(level, b)
		}
	}

	var levels [][]Block
	visited := 0
	for len(level) > 0 {
		levels = append(levels, level)
		visited += len(level)

		var next []Block
		for _, b := range level {
			for _, dep := range dependents[b.ID()] {
				inDegree[dep.ID()]--
				if inDegree[dep.ID()] == 0 {
					next = append(next, dep)
				}
			}
		}
		level = next
	}

	if visited != len(g.blocks) {
		return nil, fmt.Errorf("%w: ordered %d of %d blocks in graph %s", ErrCycle, visited, len(g.blocks), g.name)
	}
	return levels, nil
}

// attached reports whether l still counts toward the topology. Links whose
// endpoints terminated keep their place; explicitly unlinked ones do not.
func attached(l Link) bool {
	if d, ok := l.(interface{ detached() bool }); ok {
		return !d.detached()
	}
	return l.Active()
}

func (g *Graph) inDegreesLocked() map[uuid.UUID]int {
	inDegree := make(map[uuid.UUID]int, len(g.blocks))
	for _, b := range g.blocks {
		inDegree[b.ID()] = 0
	}
	for _, e := range g.edges {
		if attached(e.link) {
			inDegree[e.to.ID()]++
		}
	}
	return inDegree
}

// Complete completes every root. Completion reaches the other members
// through propagating links.
func (g *Graph) Complete() {
	for _, b := range g.Roots() {
		b.Complete()
	}
	g.log.Debug().Msg("roots completed")
}

// Wait waits for every member to become terminal and joins the errors
// of faulted members. It returns ctx's error if ctx is done first.
func (g *Graph) Wait(ctx context.Context) error {
	var errs []error
	for _, b := range g.Blocks() {
		if err := b.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			errs = append(errs, fmt.Errorf("block %s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close unlinks every link created through the graph.
func (g *Graph) Close() {
	g.mu.Lock()
	edges := g.edges
	g.edges = nil
	g.mu.Unlock()

	for _, e := range edges {
		e.link.Unlink()
	}
	g.log.Debug().Int("links", len(edges)).Msg("graph closed")
}
