package expr

import "fmt"

// BoolOp is the reducer applied across a rule list.
type BoolOp string

const (
	And BoolOp = "AND"
	Or  BoolOp = "OR"
)

// Rule is one leaf comparison in a condition tree: left <op> right,
// where left/right are source expressions compiled lazily on first
// use and cached.
type Rule struct {
	Description string `yaml:"description,omitempty"`
	Left        string `yaml:"left"`
	Op          string `yaml:"op"`
	Right       string `yaml:"right"`

	left, right Node
}

// Tree is a playbook condition: a boolean reduction of Rules, or a
// nested reduction of Children trees (so conditions can mix AND/OR
// at different levels, e.g. (A AND B) OR C).
type Tree struct {
	Op       BoolOp  `yaml:"op"`
	Rules    []*Rule `yaml:"rules,omitempty"`
	Children []*Tree `yaml:"children,omitempty"`
}

// RuleDetail is the per-rule attribution returned by EvaluateDetailed.
type RuleDetail struct {
	Description string
	LeftExpr    string
	LeftVal     float64
	Op          string
	RightExpr   string
	RightVal    float64
	Passed      bool
	Err         error
}

func compileRule(r *Rule) error {
	if r.left == nil {
		n, err := Parse(r.Left)
		if err != nil {
			return fmt.Errorf("rule %q: left expr: %w", r.Description, err)
		}
		r.left = n
	}
	if r.right == nil {
		n, err := Parse(r.Right)
		if err != nil {
			return fmt.Errorf("rule %q: right expr: %w", r.Description, err)
		}
		r.right = n
	}
	return nil
}

func evalRule(r *Rule, ctx *Context) (RuleDetail, error) {
	if err := compileRule(r); err != nil {
		return RuleDetail{}, err
	}
	lv, err := r.left.Eval(ctx)
	if err != nil {
		return RuleDetail{Description: r.Description, LeftExpr: r.Left, Op: r.Op, RightExpr: r.Right, Err: err}, err
	}
	rv, err := r.right.Eval(ctx)
	if err != nil {
		return RuleDetail{Description: r.Description, LeftExpr: r.Left, LeftVal: lv, Op: r.Op, RightExpr: r.Right, Err: err}, err
	}
	passVal, err := applyOp(r.Op, lv, rv)
	if err != nil {
		return RuleDetail{Description: r.Description, LeftExpr: r.Left, LeftVal: lv, Op: r.Op, RightExpr: r.Right, RightVal: rv, Err: err}, err
	}
	return RuleDetail{
		Description: r.Description,
		LeftExpr:    r.Left,
		LeftVal:     lv,
		Op:          r.Op,
		RightExpr:   r.Right,
		RightVal:    rv,
		Passed:      passVal != 0,
	}, nil
}

// Evaluate reduces the tree to a single bool. Per §4.1: an empty rule
// list (and no children) evaluates false. A rule whose expressions
// fail to evaluate is treated as false rather than propagating the
// error, matching "a failing expression in a condition causes that
// rule to be treated as false".
func (t *Tree) Evaluate(ctx *Context) bool {
	if t == nil {
		return false
	}
	if len(t.Rules) == 0 && len(t.Children) == 0 {
		return false
	}
	results := make([]bool, 0, len(t.Rules)+len(t.Children))
	for _, r := range t.Rules {
		detail, err := evalRule(r, ctx)
		if err != nil {
			results = append(results, false)
			continue
		}
		results = append(results, detail.Passed)
	}
	for _, child := range t.Children {
		results = append(results, child.Evaluate(ctx))
	}
	return reduce(t.Op, results)
}

// EvaluateDetailed is the attribution variant used by the playbook
// engine to record which rules fired a transition.
func (t *Tree) EvaluateDetailed(ctx *Context) (bool, []RuleDetail) {
	if t == nil || (len(t.Rules) == 0 && len(t.Children) == 0) {
		return false, nil
	}
	var details []RuleDetail
	results := make([]bool, 0, len(t.Rules)+len(t.Children))
	for _, r := range t.Rules {
		detail, err := evalRule(r, ctx)
		details = append(details, detail)
		if err != nil {
			results = append(results, false)
			continue
		}
		results = append(results, detail.Passed)
	}
	for _, child := range t.Children {
		ok, childDetails := child.EvaluateDetailed(ctx)
		details = append(details, childDetails...)
		results = append(results, ok)
	}
	return reduce(t.Op, results), details
}

func reduce(op BoolOp, results []bool) bool {
	if len(results) == 0 {
		return false
	}
	if op == Or {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	// default AND
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

// Evaluate compiles and evaluates a single source expression against
// ctx — the `evaluate(expr) -> float` entry point from §4.1, used for
// action expressions (set_var, lot/sl/tp sizing).
func Evaluate(src string, ctx *Context) (float64, error) {
	n, err := Parse(src)
	if err != nil {
		return 0, err
	}
	return n.Eval(ctx)
}
