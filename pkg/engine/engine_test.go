package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/data"
	"github.com/devicelab-dev/keyflow/pkg/driver/mock"
	"github.com/devicelab-dev/keyflow/pkg/engine"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/suite"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

type templateMap map[string][]byte

func (m templateMap) Template(name string) ([]byte, bool) {
	img, ok := m[name]
	return img, ok
}

func newScope(t *testing.T, drv *mock.Driver, mods *suite.Suite) (*engine.Engine, *engine.Scope) {
	t.Helper()
	log := zaptest.NewLogger(t)
	e, err := engine.New(engine.Config{
		DefaultTimeout: 300 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
	}, log)
	require.NoError(t, err)

	sc := &engine.Scope{
		SessionID: "test-session",
		Driver:    drv,
		Resolver:  locator.NewResolver(drv, drv.Detectors(), templateMap{}, log),
		Vars:      vars.NewStore(),
		Modules:   mods,
		Data:      &data.Loader{},
		Logger:    log,
	}
	return e, sc
}

func visible(text string, x, y int) core.ElementInfo {
	return core.ElementInfo{
		Text:    text,
		Bounds:  core.Bounds{X: x, Y: y, Width: 20, Height: 10},
		Visible: true,
		Enabled: true,
	}
}

func TestDispatch_UnknownKeyword(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Launch Rocket", nil, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrKeywordNotFound))
}

func TestDispatch_AcceptsSlugSpelling(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	e, sc := newScope(t, drv, nil)

	rec := e.Dispatch(context.Background(), sc, "press_element", []interface{}{"Home"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, "Press Element", rec.Keyword, "record carries the canonical name")
}

func TestDispatch_MissingRequiredParameter(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Press Element", nil, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrMissingParameter))
}

func TestDispatch_UnknownNamedParameter(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Sleep", nil, map[string]interface{}{"speed": "fast"})
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrUnknownParameter))
}

func TestDispatch_NamedParametersAndDefaults(t *testing.T) {
	drv := mock.New(mock.Config{ScreenWidth: 100, ScreenHeight: 100})
	e, sc := newScope(t, drv, nil)

	rec := e.Dispatch(context.Background(), sc, "Swipe", nil, map[string]interface{}{
		"direction": "down",
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)

	calls := drv.Calls()
	var swipe *mock.Call
	for i := range calls {
		if calls[i].Op == "swipe" {
			swipe = &calls[i]
		}
	}
	require.NotNil(t, swipe)
	assert.Equal(t, core.DirectionDown, swipe.Dir)
	assert.Equal(t, 300, swipe.Distance, "omitted distance takes the declared default")
}

func TestDispatch_VariableSubstitution(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Checkout", 10, 10))
	e, sc := newScope(t, drv, nil)
	sc.Vars.Set("target", "Checkout")

	rec := e.Dispatch(context.Background(), sc, "Press Element", []interface{}{"${target}"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestDispatch_FallbackGroupTriesAlternativesInOrder(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	e, sc := newScope(t, drv, nil)

	// A list of lists at a locator position is a fallback group; the
	// first locator set misses, the second resolves.
	group := []interface{}{
		[]interface{}{"Ghost"},
		[]interface{}{"Home"},
	}
	rec := e.Dispatch(context.Background(), sc, "Press Element", []interface{}{group, "80ms"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestDispatch_AllCombinationsFailIsAggregated(t *testing.T) {
	drv := mock.New(mock.Config{})
	e, sc := newScope(t, drv, nil)

	group := []interface{}{
		[]interface{}{"Ghost"},
		[]interface{}{"Phantom"},
	}
	rec := e.Dispatch(context.Background(), sc, "Press Element", []interface{}{group, "50ms"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrNotFound))
	assert.Contains(t, rec.Error, "all 2 parameter combinations failed")
	assert.Contains(t, rec.Error, "Ghost")
	assert.Contains(t, rec.Error, "Phantom")
}

func TestDispatch_FlatListAtLocatorPositionIsOneSet(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	e, sc := newScope(t, drv, nil)

	// A flat list is alternatives for a single element slot, not a
	// fallback group: the miss on "Ghost" must not consume a combination.
	rec := e.Dispatch(context.Background(), sc, "Press Element",
		[]interface{}{[]interface{}{"Ghost", "Home"}, "80ms"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.NotContains(t, rec.Error, "combinations")
}

func TestDispatch_CancelledContext(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := e.Dispatch(ctx, sc, "Sleep", []interface{}{"1s"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrCancelled))
}

func TestDispatch_UnimplementedKeyword(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Drag And Drop",
		[]interface{}{"A", "B"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrUnimplemented))
}

func TestDispatch_EmitObservesEveryRecord(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"main": {Name: "main", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
				{Keyword: "Sleep", Params: []interface{}{"1ms"}},
			}},
		},
		Entry: "main",
	}
	e, sc := newScope(t, drv, mods)

	var emitted []string
	sc.Emit = func(rec *core.ExecutionRecord) {
		emitted = append(emitted, rec.Keyword)
	}

	rec := e.Dispatch(context.Background(), sc, "Execute Module", []interface{}{"main"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	// Nested steps complete before their enclosing module.
	assert.Equal(t, []string{"Press Element", "Sleep", "Execute Module"}, emitted)
}

func TestValidateScreen_MissIsSuccessWithFalseOutcome(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Validate Screen",
		[]interface{}{"Ghost", "seen", "50ms"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, false, rec.Data)

	v, ok := sc.Vars.Get("seen")
	require.True(t, ok)
	assert.Equal(t, false, v)
}

func TestValidateScreen_MatchBindsTrue(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	e, sc := newScope(t, drv, nil)

	rec := e.Dispatch(context.Background(), sc, "Validate Screen",
		[]interface{}{"Home", "seen"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, true, rec.Data)

	v, _ := sc.Vars.Get("seen")
	assert.Equal(t, true, v)
}

func TestReadData_InlineListIsNotExpanded(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)

	rec := e.Dispatch(context.Background(), sc, "Read Data", nil, map[string]interface{}{
		"source":   []interface{}{"alpha", "beta"},
		"variable": "items",
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)

	v, ok := sc.Vars.Get("items")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"alpha", "beta"}, v)
}

func TestExecuteModule_StopsAtFirstFailure(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"main": {Name: "main", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Ghost", "50ms"}},
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
		},
		Entry: "main",
	}
	e, sc := newScope(t, drv, mods)

	rec := e.Dispatch(context.Background(), sc, "Execute Module", []interface{}{"main"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrNotFound))
	assert.Equal(t, 0, drv.CallCount("press"), "steps after the failure must not run")
}

func TestExecuteModule_CycleIsDetected(t *testing.T) {
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"a": {Name: "a", Steps: []suite.Step{
				{Keyword: "Execute Module", Params: []interface{}{"b"}},
			}},
			"b": {Name: "b", Steps: []suite.Step{
				{Keyword: "Execute Module", Params: []interface{}{"a"}},
			}},
		},
		Entry: "a",
	}
	e, sc := newScope(t, mock.New(mock.Config{}), mods)

	rec := e.Dispatch(context.Background(), sc, "Execute Module", []interface{}{"a"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrCycleDetected))
	assert.Contains(t, rec.Error, "a -> b -> a")
}

func TestExecuteModule_UnknownModule(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), &suite.Suite{Modules: map[string]*suite.Module{}})

	rec := e.Dispatch(context.Background(), sc, "Execute Module", []interface{}{"nowhere"}, nil)
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrKeywordNotFound))
}

func TestRunLoop_CountWithIndexVariable(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"tap": {Name: "tap", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
		},
	}
	e, sc := newScope(t, drv, mods)

	rec := e.Dispatch(context.Background(), sc, "Run Loop", nil, map[string]interface{}{
		"module":   "tap",
		"count":    float64(3),
		"variable": "i",
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 3, drv.CallCount("press"))

	v, _ := sc.Vars.Get("i")
	assert.Equal(t, float64(2), v, "index variable holds the last iteration")
}

func TestRunLoop_ZipStopsAtShortestSource(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"tap": {Name: "tap", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
		},
	}
	e, sc := newScope(t, drv, mods)

	rec := e.Dispatch(context.Background(), sc, "Run Loop", nil, map[string]interface{}{
		"module":    "tap",
		"variables": "name, qty",
		"sources": []interface{}{
			[]interface{}{"a", "b", "c"},
			[]interface{}{float64(1), float64(2)},
		},
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 2, drv.CallCount("press"))

	name, _ := sc.Vars.Get("name")
	qty, _ := sc.Vars.Get("qty")
	assert.Equal(t, "b", name)
	assert.Equal(t, float64(2), qty)
}

func TestRunLoop_CountAndZipAreExclusive(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), &suite.Suite{Modules: map[string]*suite.Module{}})

	rec := e.Dispatch(context.Background(), sc, "Run Loop", nil, map[string]interface{}{
		"module": "tap",
	})
	assert.Equal(t, core.StatusFail, rec.Status)
	assert.True(t, errors.Is(rec.Err, core.ErrMissingParameter))
}

func TestCondition_FirstTrueShortCircuits(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"tap": {Name: "tap", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
			"never": {Name: "never", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Ghost", "50ms"}},
			}},
		},
	}
	e, sc := newScope(t, drv, mods)
	sc.Vars.Set("count", float64(5))

	rec := e.Dispatch(context.Background(), sc, "Condition", nil, map[string]interface{}{
		"conditions": []interface{}{
			"count > 10", "never",
			"count > 2", "tap",
			"count > 0", "never",
		},
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestCondition_ModuleOutcomeAsCondition(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"check": {Name: "check", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Ghost", "50ms"}},
			}},
			"recover": {Name: "recover", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
		},
	}
	e, sc := newScope(t, drv, mods)

	// check fails; the ! prefix inverts it so recover runs.
	rec := e.Dispatch(context.Background(), sc, "Condition", nil, map[string]interface{}{
		"conditions": []interface{}{"!check", "recover"},
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestCondition_ElseRunsWhenNothingMatches(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Home", 10, 10))
	mods := &suite.Suite{
		Modules: map[string]*suite.Module{
			"tap": {Name: "tap", Steps: []suite.Step{
				{Keyword: "Press Element", Params: []interface{}{"Home"}},
			}},
		},
	}
	e, sc := newScope(t, drv, mods)

	rec := e.Dispatch(context.Background(), sc, "Condition", nil, map[string]interface{}{
		"conditions": []interface{}{false, "tap"},
		"else":       "tap",
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)
	assert.Equal(t, 1, drv.CallCount("press"))
}

func TestEvaluate_BindsFormattedResult(t *testing.T) {
	e, sc := newScope(t, mock.New(mock.Config{}), nil)
	sc.Vars.Set("price", float64(7))

	rec := e.Dispatch(context.Background(), sc, "Evaluate", nil, map[string]interface{}{
		"expression": "price * 3",
		"variable":   "total",
	})
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)

	v, _ := sc.Vars.Get("total")
	assert.Equal(t, float64(21), v)
}

func TestEnterText_TypesIntoResolvedElement(t *testing.T) {
	drv := mock.New(mock.Config{})
	drv.Screen().Place(visible("Email", 30, 40))
	e, sc := newScope(t, drv, nil)
	sc.Vars.Set("user", "alice")

	rec := e.Dispatch(context.Background(), sc, "Enter Text",
		[]interface{}{"Email", "${user}@example.com"}, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)

	calls := drv.Calls()
	var typed string
	for _, c := range calls {
		if c.Op == "enter_text" {
			typed = c.Text
		}
	}
	assert.Equal(t, "alice@example.com", typed)
}

func TestGetAppVersion_BindsDefaultVariable(t *testing.T) {
	drv := mock.New(mock.Config{AppVersion: "9.9.1"})
	e, sc := newScope(t, drv, nil)

	rec := e.Dispatch(context.Background(), sc, "Get App Version", nil, nil)
	require.Equal(t, core.StatusSuccess, rec.Status, rec.Error)

	v, ok := sc.Vars.Get("app_version")
	require.True(t, ok)
	assert.Equal(t, "9.9.1", v)
}
