package tableau

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwl-solver/reluplex/pkg/pwl"
)

type notification struct {
	kind     string
	variable pwl.VariableID
	value    float64
}

// recordingConstraint captures every notification it receives. onBound,
// if set, runs inside bound notifications to exercise re-entrancy.
type recordingConstraint struct {
	vars          []pwl.VariableID
	notifications []notification
	onBound       func(variable pwl.VariableID, bound float64)
}

func (c *recordingConstraint) RegisterAsWatcher(t pwl.Tableau) {
	for _, v := range c.vars {
		t.RegisterToWatchVariable(c, v)
	}
}

func (c *recordingConstraint) UnregisterAsWatcher(t pwl.Tableau) {
	for _, v := range c.vars {
		t.UnregisterToWatchVariable(c, v)
	}
}

func (c *recordingConstraint) NotifyVariableValue(variable pwl.VariableID, value float64) {
	c.notifications = append(c.notifications, notification{"value", variable, value})
}

func (c *recordingConstraint) NotifyLowerBound(variable pwl.VariableID, bound float64) {
	c.notifications = append(c.notifications, notification{"lower", variable, bound})
	if c.onBound != nil {
		c.onBound(variable, bound)
	}
}

func (c *recordingConstraint) NotifyUpperBound(variable pwl.VariableID, bound float64) {
	c.notifications = append(c.notifications, notification{"upper", variable, bound})
	if c.onBound != nil {
		c.onBound(variable, bound)
	}
}

func (c *recordingConstraint) ParticipatingVariable(variable pwl.VariableID) bool {
	for _, v := range c.vars {
		if v == variable {
			return true
		}
	}
	return false
}

func (c *recordingConstraint) ParticipatingVariables() []pwl.VariableID { return c.vars }
func (c *recordingConstraint) Satisfied() (bool, error)                 { return true, nil }
func (c *recordingConstraint) PossibleFixes() ([]pwl.Fix, error)        { return nil, nil }
func (c *recordingConstraint) CaseSplits() []pwl.CaseSplit              { return nil }

func TestNotificationRouting(t *testing.T) {
	tab := New()
	watcher := &recordingConstraint{vars: []pwl.VariableID{1}}
	bystander := &recordingConstraint{vars: []pwl.VariableID{2}}
	watcher.RegisterAsWatcher(tab)
	bystander.RegisterAsWatcher(tab)

	tab.SetValue(1, 4.5)
	tab.TightenLower(1, -1)
	tab.TightenUpper(1, 9)

	assert.Equal(t, []notification{
		{"value", 1, 4.5},
		{"lower", 1, -1},
		{"upper", 1, 9},
	}, watcher.notifications)
	assert.Empty(t, bystander.notifications)

	watcher.UnregisterAsWatcher(tab)
	tab.SetValue(1, 6)
	assert.Len(t, watcher.notifications, 3, "no notifications after unregister")
}

func TestBoundsOnlyTighten(t *testing.T) {
	tab := New()
	watcher := &recordingConstraint{vars: []pwl.VariableID{1}}
	watcher.RegisterAsWatcher(tab)

	tab.TightenLower(1, 2)
	tab.TightenLower(1, 1) // looser, dropped
	tab.TightenUpper(1, 5)
	tab.TightenUpper(1, 7) // looser, dropped

	lb, ok := tab.LowerBound(1)
	require.True(t, ok)
	assert.Equal(t, 2.0, lb)
	ub, ok := tab.UpperBound(1)
	require.True(t, ok)
	assert.Equal(t, 5.0, ub)
	assert.Len(t, watcher.notifications, 2)
}

func TestApplySplitInstallsBeforeNotifying(t *testing.T) {
	tab := New()

	var split pwl.CaseSplit
	split.StoreBoundTightening(pwl.Tightening{Variable: 1, Value: 0, Kind: pwl.LowerBound})
	split.StoreBoundTightening(pwl.Tightening{Variable: 2, Value: 3, Kind: pwl.UpperBound})
	var eq pwl.Equation
	eq.AddAddend(1, 1)
	eq.AddAddend(-1, 2)
	eq.SetScalar(0)
	split.AddEquation(eq)

	// the first notification must already observe the whole split
	watcher := &recordingConstraint{vars: []pwl.VariableID{1, 2}}
	watcher.onBound = func(pwl.VariableID, float64) {
		if len(watcher.notifications) == 1 {
			ub, ok := tab.UpperBound(2)
			assert.True(t, ok)
			assert.Equal(t, 3.0, ub)
			assert.Len(t, tab.Equations(), 1)
		}
	}
	watcher.RegisterAsWatcher(tab)

	tab.ApplySplit(split)

	assert.Equal(t, []notification{
		{"lower", 1, 0},
		{"upper", 2, 3},
	}, watcher.notifications)
}

func TestApplySplitReentrant(t *testing.T) {
	tab := New()

	var inner pwl.CaseSplit
	inner.StoreBoundTightening(pwl.Tightening{Variable: 2, Value: 1, Kind: pwl.LowerBound})

	var outer pwl.CaseSplit
	outer.StoreBoundTightening(pwl.Tightening{Variable: 1, Value: 0, Kind: pwl.LowerBound})

	watcher := &recordingConstraint{vars: []pwl.VariableID{1, 2}}
	watcher.onBound = func(variable pwl.VariableID, _ float64) {
		if variable == 1 {
			tab.ApplySplit(inner)
		}
	}
	watcher.RegisterAsWatcher(tab)

	tab.ApplySplit(outer)

	lb, ok := tab.LowerBound(2)
	require.True(t, ok)
	assert.Equal(t, 1.0, lb)
	assert.Equal(t, []notification{
		{"lower", 1, 0},
		{"lower", 2, 1},
	}, watcher.notifications)
}

func TestFeasibleBounds(t *testing.T) {
	tab := New()
	tab.TightenLower(1, 0)
	tab.TightenUpper(1, 2)
	assert.True(t, tab.Feasible())

	tab.TightenLower(1, 3)
	assert.False(t, tab.Feasible())
}

func TestFeasibleEquations(t *testing.T) {
	// x1 - x2 = 0 with x1 in [2, 3]
	var eq pwl.Equation
	eq.AddAddend(1, 1)
	eq.AddAddend(-1, 2)
	eq.SetScalar(0)
	var split pwl.CaseSplit
	split.AddEquation(eq)

	tab := New()
	tab.TightenLower(1, 2)
	tab.TightenUpper(1, 3)
	tab.ApplySplit(split)

	// x2 unbounded: cannot refute
	assert.True(t, tab.Feasible())

	// x2 in [0, 1]: LHS interval [1, 3] misses 0
	tab.TightenLower(2, 0)
	tab.TightenUpper(2, 1)
	assert.False(t, tab.Feasible())

	// widening is not possible; a fresh tableau with x2 in [1, 4]
	// straddles the scalar
	tab2 := New()
	tab2.TightenLower(1, 2)
	tab2.TightenUpper(1, 3)
	tab2.TightenLower(2, 1)
	tab2.TightenUpper(2, 4)
	tab2.ApplySplit(split)
	assert.True(t, tab2.Feasible())
}

func TestSnapshotIsIndependent(t *testing.T) {
	tab := New()
	tab.SetValue(1, 5)
	tab.TightenLower(1, 0)
	tab.TightenUpper(1, 10)

	watcher := &recordingConstraint{vars: []pwl.VariableID{1}}
	watcher.RegisterAsWatcher(tab)

	snap := tab.Snapshot()
	value, ok := snap.Value(1)
	require.True(t, ok)
	assert.Equal(t, 5.0, value)

	// mutating the snapshot leaves the original untouched and
	// notifies no one
	snap.TightenLower(1, 8)
	lb, _ := tab.LowerBound(1)
	assert.Equal(t, 0.0, lb)
	assert.Empty(t, watcher.notifications)
}
