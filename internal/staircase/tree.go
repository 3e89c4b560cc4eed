// Package staircase holds the fixed decision tree that picks the next acuity level.
package staircase

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/landolt/internal/model"
)

// None marks an absent successor or result in a Node.
const None = -1

// ErrUnknownLevel is returned for a level index outside the tree.
var ErrUnknownLevel = errors.New("unknown acuity level")

// Node is the branching rule for one level. Interior nodes set both
// successors and no results; leaves set both results and no successors.
type Node struct {
	OnPass     int
	OnFail     int
	PassResult int
	FailResult int
}

// IsLeaf reports whether the node ends the test.
func (n Node) IsLeaf() bool {
	return n.OnPass == None && n.OnFail == None
}

// Tree maps every catalog index to its Node.
type Tree struct {
	levels []model.AcuityLevel
	nodes  []Node
}

// Decision is the outcome of one evaluated row.
type Decision struct {
	Finished bool
	// Next is the level to test when not finished.
	Next int
	// Final is the reported level when finished.
	Final int
}

// Default returns the clinical tree over model.Catalog, starting at 6/6.
func Default() *Tree {
	idx := func(notation string) int {
		i, ok := model.LevelIndex(notation)
		if !ok {
			panic(fmt.Sprintf("staircase: notation %s missing from catalog", notation))
		}
		return i
	}
	branch := func(pass, fail string) Node {
		return Node{OnPass: idx(pass), OnFail: idx(fail), PassResult: None, FailResult: None}
	}
	leaf := func(pass, fail string) Node {
		return Node{OnPass: None, OnFail: None, PassResult: idx(pass), FailResult: idx(fail)}
	}

	nodes := make([]Node, len(model.Catalog))
	nodes[idx("6/6")] = branch("6/4", "6/9")
	nodes[idx("6/4")] = branch("6/3", "6/5")
	nodes[idx("6/9")] = branch("6/8", "6/18")
	nodes[idx("6/18")] = branch("6/12", "6/24")
	nodes[idx("6/3")] = leaf("6/3", "6/4")
	nodes[idx("6/5")] = leaf("6/5", "6/6")
	nodes[idx("6/8")] = leaf("6/8", "6/9")
	nodes[idx("6/12")] = leaf("6/12", "6/18")
	nodes[idx("6/24")] = leaf("6/24", "6/24")

	t, err := New(model.Catalog, nodes)
	if err != nil {
		panic(err)
	}
	return t
}

// New validates nodes against levels and builds a Tree.
func New(levels []model.AcuityLevel, nodes []Node) (*Tree, error) {
	if len(levels) == 0 {
		return nil, errors.New("staircase: empty catalog")
	}
	if len(nodes) != len(levels) {
		return nil, fmt.Errorf("staircase: %d nodes for %d levels", len(nodes), len(levels))
	}
	t := &Tree{levels: levels, nodes: nodes}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) validate() error {
	inRange := func(i int) bool { return i >= 0 && i < len(t.nodes) }
	for i, n := range t.nodes {
		switch {
		case n.IsLeaf():
			if !inRange(n.PassResult) || !inRange(n.FailResult) {
				return fmt.Errorf("staircase: leaf %s needs both results", t.levels[i])
			}
		case inRange(n.OnPass) && inRange(n.OnFail):
			if n.PassResult != None || n.FailResult != None {
				return fmt.Errorf("staircase: branch %s must not carry results", t.levels[i])
			}
		default:
			return fmt.Errorf("staircase: level %s has a partial node", t.levels[i])
		}
	}
	for i := range t.nodes {
		if _, err := t.Depth(i); err != nil {
			return err
		}
	}
	return nil
}

// Levels returns the catalog the tree is defined over.
func (t *Tree) Levels() []model.AcuityLevel {
	return t.levels
}

// Level returns the catalog entry for an index.
func (t *Tree) Level(i int) (model.AcuityLevel, error) {
	if i < 0 || i >= len(t.levels) {
		return model.AcuityLevel{}, fmt.Errorf("%w: index %d", ErrUnknownLevel, i)
	}
	return t.levels[i], nil
}

// Node returns the rule for a level index.
func (t *Tree) Node(i int) (Node, error) {
	if i < 0 || i >= len(t.nodes) {
		return Node{}, fmt.Errorf("%w: index %d", ErrUnknownLevel, i)
	}
	return t.nodes[i], nil
}

// Decide returns the next level to test or the final acuity.
func (t *Tree) Decide(level int, passed bool) (Decision, error) {
	n, err := t.Node(level)
	if err != nil {
		return Decision{}, err
	}
	if n.IsLeaf() {
		final := n.FailResult
		if passed {
			final = n.PassResult
		}
		return Decision{Finished: true, Next: None, Final: final}, nil
	}
	next := n.OnFail
	if passed {
		next = n.OnPass
	}
	return Decision{Next: next, Final: None}, nil
}

// Depth returns the longest number of rows tested from level to a result.
// It fails when a branch revisits a level.
func (t *Tree) Depth(level int) (int, error) {
	return t.depth(level, make([]bool, len(t.nodes)))
}

func (t *Tree) depth(level int, onPath []bool) (int, error) {
	n, err := t.Node(level)
	if err != nil {
		return 0, err
	}
	if n.IsLeaf() {
		return 1, nil
	}
	if onPath[level] {
		return 0, fmt.Errorf("staircase: cycle through %s", t.levels[level])
	}
	onPath[level] = true
	defer func() { onPath[level] = false }()
	best := 0
	for _, next := range []int{n.OnPass, n.OnFail} {
		d, err := t.depth(next, onPath)
		if err != nil {
			return 0, err
		}
		if d > best {
			best = d
		}
	}
	return best + 1, nil
}

// RowPassed applies the row rule: no forced fail and every symbol correct.
func RowPassed(outcomes []model.Outcome, forceFail bool) bool {
	if forceFail || len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o != model.Correct {
			return false
		}
	}
	return true
}
