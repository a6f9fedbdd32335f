package validate

import (
	"go/ast"
	"go/token"

	"flowcc/internal/consteval"
)

func (c *checker) isBoundedFor(stmt *ast.ForStmt) bool {
	if stmt == nil || stmt.Init == nil || stmt.Cond == nil || stmt.Post == nil {
		return false
	}
	iterName, ok := c.loopInit(stmt.Init)
	if !ok {
		return false
	}
	direction, ok := c.loopCondition(stmt.Cond, iterName)
	if !ok {
		return false
	}
	step, ok := c.loopStep(stmt.Post, iterName)
	if !ok {
		return false
	}
	if direction == increasing && step <= 0 {
		return false
	}
	if direction == decreasing && step >= 0 {
		return false
	}
	return true
}

func (c *checker) loopInit(stmt ast.Stmt) (string, bool) {
	assign, ok := stmt.(*ast.AssignStmt)
	if !ok || len(assign.Lhs) != 1 || len(assign.Rhs) != 1 {
		return "", false
	}
	ident, ok := assign.Lhs[0].(*ast.Ident)
	if !ok || ident.Name == "_" {
		return "", false
	}
	if _, ok := consteval.Int64(c.eval, assign.Rhs[0]); !ok {
		return "", false
	}
	return ident.Name, true
}

type loopDirection int

const (
	increasing loopDirection = 1
	decreasing loopDirection = -1
)

func (c *checker) loopCondition(expr ast.Expr, iter string) (loopDirection, bool) {
	bin, ok := expr.(*ast.BinaryExpr)
	if !ok {
		return 0, false
	}
	left, ok := bin.X.(*ast.Ident)
	if !ok || left.Name != iter {
		return 0, false
	}
	if _, ok := consteval.Int64(c.eval, bin.Y); !ok {
		return 0, false
	}
	switch bin.Op {
	case token.LSS, token.LEQ:
		return increasing, true
	case token.GTR, token.GEQ:
		return decreasing, true
	default:
		return 0, false
	}
}

func (c *checker) loopStep(stmt ast.Stmt, iter string) (int64, bool) {
	switch s := stmt.(type) {
	case *ast.IncDecStmt:
		ident, ok := s.X.(*ast.Ident)
		if !ok || ident.Name != iter {
			return 0, false
		}
		if s.Tok == token.INC {
			return 1, true
		}
		return -1, true
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			return 0, false
		}
		ident, ok := s.Lhs[0].(*ast.Ident)
		if !ok || ident.Name != iter {
			return 0, false
		}
		switch s.Tok {
		case token.ADD_ASSIGN:
			return consteval.Int64(c.eval, s.Rhs[0])
		case token.SUB_ASSIGN:
			if step, ok := consteval.Int64(c.eval, s.Rhs[0]); ok {
				return -step, true
			}
		case token.ASSIGN:
			bin, ok := s.Rhs[0].(*ast.BinaryExpr)
			if !ok {
				return 0, false
			}
			left, ok := bin.X.(*ast.Ident)
			if !ok || left.Name != iter {
				return 0, false
			}
			step, ok := consteval.Int64(c.eval, bin.Y)
			if !ok {
				return 0, false
			}
			switch bin.Op {
			case token.ADD:
				return step, true
			case token.SUB:
				return -step, true
			}
		}
	}
	return 0, false
}
