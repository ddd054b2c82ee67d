package expr

import (
	"go.starlark.net/syntax"
)

// scope holds the names bound by one comprehension or lambda.
type scope struct {
	names  map[string]bool
	parent *scope
}

func (s *scope) child() *scope {
	return &scope{names: make(map[string]bool), parent: s}
}

func (s *scope) bound(name string) bool {
	for ; s != nil; s = s.parent {
		if s.names[name] {
			return true
		}
	}
	return false
}

// bind adds every identifier in a loop target or parameter to s.
func (s *scope) bind(n syntax.Node) {
	if n == nil {
		return
	}
	syntax.Walk(n, func(n syntax.Node) bool {
		if id, ok := n.(*syntax.Ident); ok {
			s.names[id.Name] = true
		}
		return true
	})
}

// freeNames returns the identifiers of e that must be bound by the
// environment, in order of first use. Attribute selectors, keyword argument
// names, and names bound by an enclosing comprehension or lambda are
// excluded.
func freeNames(e syntax.Expr) []string {
	var (
		seen  = make(map[string]bool)
		names []string
	)
	rewriteFree(e, func(id *syntax.Ident) syntax.Expr {
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
		return id
	})
	return names
}

// rewriteFree calls fn for every free identifier of e and replaces the
// identifier with the expression fn returns. It returns the rewritten e.
func rewriteFree(e syntax.Expr, fn func(*syntax.Ident) syntax.Expr) syntax.Expr {
	r := &rewriter{fn: fn}
	return r.expr(e, nil)
}

type rewriter struct {
	fn func(*syntax.Ident) syntax.Expr
}

func (r *rewriter) expr(e syntax.Expr, s *scope) syntax.Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *syntax.Ident:
		if s.bound(e.Name) {
			return e
		}
		return r.fn(e)
	case *syntax.ParenExpr:
		e.X = r.expr(e.X, s)
	case *syntax.UnaryExpr:
		e.X = r.expr(e.X, s)
	case *syntax.BinaryExpr:
		e.X = r.expr(e.X, s)
		e.Y = r.expr(e.Y, s)
	case *syntax.CondExpr:
		e.Cond = r.expr(e.Cond, s)
		e.True = r.expr(e.True, s)
		e.False = r.expr(e.False, s)
	case *syntax.DotExpr:
		e.X = r.expr(e.X, s)
	case *syntax.IndexExpr:
		e.X = r.expr(e.X, s)
		e.Y = r.expr(e.Y, s)
	case *syntax.SliceExpr:
		e.X = r.expr(e.X, s)
		e.Lo = r.expr(e.Lo, s)
		e.Hi = r.expr(e.Hi, s)
		e.Step = r.expr(e.Step, s)
	case *syntax.ListExpr:
		r.list(e.List, s)
	case *syntax.TupleExpr:
		r.list(e.List, s)
	case *syntax.DictExpr:
		r.list(e.List, s)
	case *syntax.DictEntry:
		e.Key = r.expr(e.Key, s)
		e.Value = r.expr(e.Value, s)
	case *syntax.CallExpr:
		e.Fn = r.expr(e.Fn, s)
		for i, arg := range e.Args {
			if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
				if _, ok := kw.X.(*syntax.Ident); ok {
					kw.Y = r.expr(kw.Y, s)
					continue
				}
			}
			e.Args[i] = r.expr(arg, s)
		}
	case *syntax.Comprehension:
		// The first iterable is evaluated in the enclosing scope.
		inner := s.child()
		for i, clause := range e.Clauses {
			switch c := clause.(type) {
			case *syntax.ForClause:
				if i == 0 {
					c.X = r.expr(c.X, s)
				} else {
					c.X = r.expr(c.X, inner)
				}
				inner.bind(c.Vars)
			case *syntax.IfClause:
				c.Cond = r.expr(c.Cond, inner)
			}
		}
		e.Body = r.expr(e.Body, inner)
	case *syntax.LambdaExpr:
		inner := s.child()
		for _, param := range e.Params {
			switch p := param.(type) {
			case *syntax.BinaryExpr:
				p.Y = r.expr(p.Y, s)
				inner.bind(p.X)
			case *syntax.UnaryExpr:
				if p.X != nil {
					inner.bind(p.X)
				}
			default:
				inner.bind(p)
			}
		}
		e.Body = r.expr(e.Body, inner)
	}
	return e
}

func (r *rewriter) list(items []syntax.Expr, s *scope) {
	for i, item := range items {
		items[i] = r.expr(item, s)
	}
}
