package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // screenshot decoding
	"strings"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/keyword"
	"github.com/devicelab-dev/keyflow/pkg/locator"
)

// builtins assembles the keyword catalog and binds each descriptor's
// capability. Called once from New; the registry never changes after.
func (e *Engine) builtins() []*keyword.Descriptor {
	type entry struct {
		desc *keyword.Descriptor
		impl Capability
	}

	locatorParam := func(optional bool) keyword.ParamSpec {
		return keyword.ParamSpec{
			Name:        "locator",
			Type:        keyword.TypeLocator,
			Description: "element locator or locator set",
			Optional:    optional,
			LocatorSet:  true,
		}
	}
	timeoutParam := keyword.ParamSpec{Name: "timeout", Type: keyword.TypeDuration, Description: "resolution timeout", Optional: true}
	roiParam := keyword.ParamSpec{Name: "roi", Type: keyword.TypeString, Description: "search region as x,y,w,h percentages", Optional: true}
	indexParam := keyword.ParamSpec{Name: "index", Type: keyword.TypeNumber, Description: "0-based match index", Optional: true}
	variableParam := keyword.ParamSpec{Name: "variable", Type: keyword.TypeString, Description: "variable name to bind the result to"}

	entries := []entry{
		{
			desc: &keyword.Descriptor{
				Name:        "Press Element",
				Description: "Resolves a locator and taps the first match.",
				Params:      []keyword.ParamSpec{locatorParam(false), timeoutParam, roiParam, indexParam},
			},
			impl: e.pressElement,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Swipe",
				Description: "Swipes from an element or the screen center in a direction.",
				Params: []keyword.ParamSpec{
					{Name: "direction", Type: keyword.TypeString, Description: "up, down, left or right"},
					{Name: "distance", Type: keyword.TypeNumber, Description: "gesture length in pixels", Optional: true, Default: float64(300)},
					locatorParam(true), timeoutParam, roiParam,
				},
			},
			impl: e.swipe,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Scroll",
				Description: "Scrolls the viewport in a direction.",
				Params: []keyword.ParamSpec{
					{Name: "direction", Type: keyword.TypeString, Description: "up, down, left or right"},
					{Name: "distance", Type: keyword.TypeNumber, Description: "scroll length in pixels", Optional: true, Default: float64(300)},
				},
			},
			impl: e.scroll,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Enter Text",
				Description: "Resolves a locator and types text into the match.",
				Params: []keyword.ParamSpec{
					locatorParam(false),
					{Name: "text", Type: keyword.TypeString, Description: "text to type"},
					timeoutParam, roiParam,
				},
			},
			impl: e.enterText,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Read Text",
				Description: "Reads on-screen text from an element or region into a variable.",
				Params:      []keyword.ParamSpec{locatorParam(true), variableParam, roiParam, timeoutParam},
			},
			impl: e.readText,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Add Element",
				Description: "Resolves a locator and binds the match's bounds and text as a mapping variable.",
				Params:      []keyword.ParamSpec{locatorParam(false), variableParam, timeoutParam, roiParam, indexParam},
			},
			impl: e.addElement,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Assert Presence",
				Description: "Fails unless the locator matches within the timeout.",
				Params:      []keyword.ParamSpec{locatorParam(false), timeoutParam, roiParam, indexParam},
			},
			impl: e.assertPresence,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Validate Screen",
				Description: "Checks presence without failing; binds the boolean outcome.",
				Params: []keyword.ParamSpec{
					locatorParam(false),
					{Name: "variable", Type: keyword.TypeString, Description: "variable name for the boolean outcome", Optional: true},
					timeoutParam, roiParam, indexParam,
				},
			},
			impl: e.validateScreen,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Get App Version",
				Description: "Binds the application version reported by the driver.",
				Params: []keyword.ParamSpec{
					{Name: "variable", Type: keyword.TypeString, Description: "variable name to bind", Optional: true, Default: "app_version"},
				},
			},
			impl: e.getAppVersion,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Drag And Drop",
				Description: "Drags one element onto another.",
				Params: []keyword.ParamSpec{
					{Name: "source", Type: keyword.TypeLocator, Description: "element to drag", LocatorSet: true},
					{Name: "target", Type: keyword.TypeLocator, Description: "element to drop onto", LocatorSet: true},
				},
			},
			impl: unimplemented,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Pinch",
				Description: "Pinch-zooms on an element.",
				Params: []keyword.ParamSpec{
					locatorParam(true),
					{Name: "scale", Type: keyword.TypeNumber, Description: "zoom factor", Optional: true},
				},
			},
			impl: unimplemented,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Sleep",
				Description: "Waits for a duration; interrupted by session termination.",
				Params: []keyword.ParamSpec{
					{Name: "duration", Type: keyword.TypeDuration, Description: "how long to wait"},
				},
			},
			impl: e.sleep,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Execute Module",
				Description: "Runs a named module; fails on cycles.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "module", Type: keyword.TypeString, Description: "module name"},
				},
			},
			impl: e.executeModule,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Run Loop",
				Description: "Repeats a module by count or by zipping variables over sources.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "module", Type: keyword.TypeString, Description: "module name"},
					{Name: "count", Type: keyword.TypeNumber, Description: "iteration count", Optional: true},
					{Name: "variable", Type: keyword.TypeString, Description: "loop index variable name", Optional: true},
					{Name: "variables", Type: keyword.TypeAny, Description: "variable names for zip iteration", Optional: true},
					{Name: "sources", Type: keyword.TypeAny, Description: "iterable sources for zip iteration", Optional: true},
				},
			},
			impl: e.runLoop,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Condition",
				Description: "Runs the target of the first true condition; short-circuits.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "conditions", Type: keyword.TypeAny, Description: "condition/target pairs"},
					{Name: "else", Type: keyword.TypeString, Description: "module when nothing matches", Optional: true},
				},
			},
			impl: e.condition,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Read Data",
				Description: "Loads a list, file, environment variable or HTTP resource into a variable.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "source", Type: keyword.TypeAny, Description: "data source"},
					variableParam,
					{Name: "query", Type: keyword.TypeString, Description: "filter/column selection query", Optional: true},
				},
			},
			impl: e.readData,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Evaluate",
				Description: "Computes an arithmetic expression over the variables.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "expression", Type: keyword.TypeString, Description: "restricted arithmetic expression"},
					variableParam,
					{Name: "format", Type: keyword.TypeString, Description: "fmt verb for the result", Optional: true},
				},
			},
			impl: e.evaluate,
		},
		{
			desc: &keyword.Descriptor{
				Name:        "Date Evaluate",
				Description: "Computes a date expression such as today + 3d.",
				Control:     true,
				Params: []keyword.ParamSpec{
					{Name: "expression", Type: keyword.TypeString, Description: "restricted date expression"},
					variableParam,
					{Name: "format", Type: keyword.TypeString, Description: "output pattern, yyyy-MM-dd by default", Optional: true},
				},
			},
			impl: e.dateEvaluate,
		},
	}

	descs := make([]*keyword.Descriptor, len(entries))
	for i, ent := range entries {
		if ent.desc.Slug == "" {
			ent.desc.Slug = keyword.Slugify(ent.desc.Name)
		}
		e.impls[ent.desc.Slug] = ent.impl
		descs[i] = ent.desc
	}
	return descs
}

func unimplemented(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	return nil, core.ErrUnimplemented.WithMessagef("%s is not implemented yet", inv.Desc.Name)
}

// locatorOptions builds resolver options from the engine defaults plus
// the invocation's timeout, roi and index parameters.
func (e *Engine) locatorOptions(inv *Invocation) (locator.Options, error) {
	opts := locator.Options{
		Timeout:  e.cfg.DefaultTimeout,
		Interval: e.cfg.PollInterval,
		Order:    e.cfg.StrategyOrder,
		Index:    -1,
	}
	if inv.Has("timeout") {
		d, err := inv.Duration("timeout")
		if err != nil {
			return opts, err
		}
		opts.Timeout = d
	}
	if inv.Has("roi") {
		roi, err := locator.ParseROI(inv.String("roi"))
		if err != nil {
			return opts, core.ErrMissingParameter.WithMessagef("%s parameter %q: %v", inv.Desc.Name, "roi", err)
		}
		opts.ROI = roi
	}
	if inv.Has("index") {
		n, err := inv.Int("index")
		if err != nil {
			return opts, err
		}
		opts.Index = n
	}
	return opts, nil
}

// resolveParam resolves a locator parameter. On failure the returned
// partial result carries the annotated screenshot when one exists, so
// the record keeps it.
func (e *Engine) resolveParam(ctx context.Context, sc *Scope, inv *Invocation, param string) (*locator.Resolution, *core.Result, error) {
	set, err := inv.Locators(param)
	if err != nil {
		return nil, nil, err
	}
	opts, err := e.locatorOptions(inv)
	if err != nil {
		return nil, nil, err
	}
	res, err := sc.Resolver.Resolve(ctx, set, opts)
	if err != nil {
		var partial *core.Result
		if res != nil && len(res.Annotated) > 0 {
			partial = &core.Result{Attachments: []core.Attachment{core.NewROIScreenshotAttachment(res.Annotated)}}
		}
		return nil, partial, err
	}
	return res, nil, nil
}

func (e *Engine) pressElement(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
	if err != nil {
		return partial, err
	}
	el := res.First()
	if err := sc.Driver.Press(ctx, el.Bounds.Center()); err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return &core.Result{
		Message: fmt.Sprintf("pressed %s", describeElement(el)),
		Element: &el,
	}, nil
}

func (e *Engine) swipe(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	dir, err := parseDirection(inv)
	if err != nil {
		return nil, err
	}
	distance, err := inv.Int("distance")
	if err != nil {
		return nil, err
	}

	var start core.Point
	if inv.Has("locator") {
		res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
		if err != nil {
			return partial, err
		}
		start = res.First().Bounds.Center()
	} else {
		start, err = screenCenter(ctx, sc)
		if err != nil {
			return nil, err
		}
	}

	if err := sc.Driver.Swipe(ctx, start, dir, distance); err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return &core.Result{Message: fmt.Sprintf("swiped %s from (%d,%d)", dir, start.X, start.Y)}, nil
}

func (e *Engine) scroll(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	dir, err := parseDirection(inv)
	if err != nil {
		return nil, err
	}
	distance, err := inv.Int("distance")
	if err != nil {
		return nil, err
	}
	if err := sc.Driver.Scroll(ctx, dir, distance); err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return &core.Result{Message: fmt.Sprintf("scrolled %s", dir)}, nil
}

func (e *Engine) enterText(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
	if err != nil {
		return partial, err
	}
	el := res.First()
	text := inv.String("text")
	if err := sc.Driver.EnterText(ctx, el.Bounds.Center(), text); err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return &core.Result{
		Message: fmt.Sprintf("entered text into %s", describeElement(el)),
		Element: &el,
	}, nil
}

func (e *Engine) readText(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	variable := inv.String("variable")

	var region core.Bounds
	if inv.Has("locator") {
		res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
		if err != nil {
			return partial, err
		}
		region = res.First().Bounds
	} else if inv.Has("roi") {
		roi, err := locator.ParseROI(inv.String("roi"))
		if err != nil {
			return nil, core.ErrMissingParameter.WithMessagef("%s parameter %q: %v", inv.Desc.Name, "roi", err)
		}
		w, h, err := screenSize(ctx, sc)
		if err != nil {
			return nil, err
		}
		region = roi.Bounds(w, h)
	}

	text, err := sc.Driver.ReadText(ctx, region)
	if err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	sc.Vars.Set(variable, text)
	return &core.Result{
		Message: fmt.Sprintf("%s = %q", variable, text),
		Data:    text,
	}, nil
}

func (e *Engine) addElement(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
	if err != nil {
		return partial, err
	}
	el := res.First()
	variable := inv.String("variable")
	entry := map[string]interface{}{
		"text":       el.Text,
		"x":          float64(el.Bounds.X),
		"y":          float64(el.Bounds.Y),
		"width":      float64(el.Bounds.Width),
		"height":     float64(el.Bounds.Height),
		"confidence": el.Confidence,
	}
	sc.Vars.Set(variable, entry)
	return &core.Result{
		Message: fmt.Sprintf("%s = %s", variable, describeElement(el)),
		Element: &el,
		Data:    entry,
	}, nil
}

func (e *Engine) assertPresence(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
	if err != nil {
		return partial, err
	}
	el := res.First()
	return &core.Result{
		Message:  fmt.Sprintf("%d match(es) after %d poll(s)", len(res.Matches), res.Polls),
		Element:  &el,
		Elements: res.Matches,
	}, nil
}

// validateScreen downgrades its own presence misses to a false outcome;
// every other failure still propagates.
func (e *Engine) validateScreen(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	res, partial, err := e.resolveParam(ctx, sc, inv, "locator")
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return partial, err
	}
	verified := err == nil

	if variable := inv.String("variable"); variable != "" {
		sc.Vars.Set(variable, verified)
	}

	out := &core.Result{Data: verified}
	if verified {
		el := res.First()
		out.Message = fmt.Sprintf("screen verified, %d match(es)", len(res.Matches))
		out.Element = &el
		out.Elements = res.Matches
	} else {
		out.Message = "screen verification failed"
		if partial != nil {
			out.Attachments = partial.Attachments
		}
	}
	return out, nil
}

func (e *Engine) getAppVersion(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error) {
	version, err := sc.Driver.AppVersion(ctx)
	if err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	variable := inv.String("variable")
	sc.Vars.Set(variable, version)
	return &core.Result{
		Message: fmt.Sprintf("%s = %s", variable, version),
		Data:    version,
	}, nil
}

func parseDirection(inv *Invocation) (core.Direction, error) {
	raw := inv.String("direction")
	switch strings.ToLower(raw) {
	case "up":
		return core.DirectionUp, nil
	case "down":
		return core.DirectionDown, nil
	case "left":
		return core.DirectionLeft, nil
	case "right":
		return core.DirectionRight, nil
	}
	return "", core.ErrMissingParameter.WithMessagef("%s parameter %q: %q is not a direction", inv.Desc.Name, "direction", raw)
}

func screenSize(ctx context.Context, sc *Scope) (int, int, error) {
	shot, err := sc.Driver.Screenshot(ctx)
	if err != nil {
		return 0, 0, core.ErrBackend.WithCause(err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(shot))
	if err != nil {
		return 0, 0, core.ErrBackend.WithMessagef("decode screenshot: %v", err)
	}
	return cfg.Width, cfg.Height, nil
}

func screenCenter(ctx context.Context, sc *Scope) (core.Point, error) {
	w, h, err := screenSize(ctx, sc)
	if err != nil {
		return core.Point{}, err
	}
	return core.Point{X: w / 2, Y: h / 2}, nil
}

func describeElement(el core.ElementInfo) string {
	if el.Text != "" {
		return fmt.Sprintf("%q at (%d,%d)", el.Text, el.Bounds.X, el.Bounds.Y)
	}
	if el.ID != "" {
		return fmt.Sprintf("#%s at (%d,%d)", el.ID, el.Bounds.X, el.Bounds.Y)
	}
	return fmt.Sprintf("element at (%d,%d)", el.Bounds.X, el.Bounds.Y)
}
