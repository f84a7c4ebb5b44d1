// Package check implements the type checker: a single AST walk that
// resolves names against the two-namespace scope stack, computes each
// expression's type exactly once, and propagates `never` through
// unreachable code (spec.md §4.I), grounded on the original checker's
// `TypeVisitor::check` walk (original_source/compiler/src/compiler/typecheck.rs).
package check

import (
	"github.com/btouchard/nibl/internal/compiler/ast"
	"github.com/btouchard/nibl/internal/compiler/diag"
	"github.com/btouchard/nibl/internal/compiler/scope"
	"github.com/btouchard/nibl/internal/compiler/types"
)

// Checker walks a file's declarations, maintaining one scope.Stack across
// the whole traversal.
type Checker struct {
	stack *scope.Stack
	log   *diag.Logger
}

// NewChecker creates a checker seeded with the builtin top-level scope.
func NewChecker(log *diag.Logger) *Checker {
	return &Checker{stack: scope.NewStack(log), log: log}
}

// CheckFile type-checks every top-level declaration in file, in source
// order, against the checker's top scope.
func (c *Checker) CheckFile(file *ast.File) {
	c.checkDeclSeq(file.Decls)
}

// checkDeclSeq checks decls in order and returns the type of the last
// expression-shaped declaration, or Void if the sequence is empty or ends
// in a non-expression declaration. This is the value a BlockExpr (or a
// function body) yields (spec.md §4.G's pop_scope, §4.I point 7).
func (c *Checker) checkDeclSeq(decls []ast.Decl) types.Type {
	var last types.Type = types.Void{}
	for _, d := range decls {
		last = c.checkDecl(d)
	}
	return last
}

func (c *Checker) checkDecl(d ast.Decl) types.Type {
	switch d := d.(type) {
	case *ast.VarDecl:
		c.checkVarDecl(d)
		return types.Void{}
	case *ast.FunDecl:
		c.checkFunDecl(d)
		return types.Void{}
	case *ast.TypeDecl:
		c.checkTypeDecl(d)
		return types.Void{}
	case *ast.ExprDecl:
		return c.checkExpr(d.Value)
	default:
		panic("check: unhandled declaration type")
	}
}

// checkTypeDecl resolves the underlying type reference and pushes either a
// transparent types.Alias or an opaque types.Named into the current
// scope's Types namespace, keyed by the declared name (spec.md §3's
// alias/opaque-wrapper feature).
func (c *Checker) checkTypeDecl(t *ast.TypeDecl) {
	underlying := c.resolveTypeRef(t.Underlying)
	var ty types.Type
	if t.Opaque {
		ty = types.Named{Name: t.Name, Ty: underlying, Decl: t}
	} else {
		ty = types.Alias{Name: t.Name, Ty: underlying, Decl: t}
	}
	c.stack.TryPushType(scope.NewFullPath(t.Name), ty, t.Sp)
}

// checkVarDecl validates the initializer against the declared type
// annotation (if any), then tries to push the new entity into the
// current scope (spec.md §4.I point 6).
func (c *Checker) checkVarDecl(v *ast.VarDecl) {
	valueTy := c.checkExpr(v.Value)
	finalTy := valueTy
	if v.Type != nil {
		declaredTy := c.resolveTypeRef(v.Type)
		finalTy = c.stack.ExpectEq(valueTy, declaredTy, v.Value.Span())
	}
	v.Meta().Type = finalTy
	entity := &scope.Entity{Name: scope.NewFullPath(v.Name), Decl: v, Type: finalTy, Mutable: v.Mutable}
	c.stack.TryPushEntity(entity, v.Sp)
}

// checkFunDecl pushes a Function-level scope whose expected return type is
// the declared annotation (if any), checks the body, and resolves the
// function's signature return type: the declared annotation when present,
// otherwise whatever infer_return_type settled on (read before the scope's
// never-forcing pop, since that forcing describes the body's own yielded
// value, not the function's signature), otherwise the body's trailing
// value (spec.md §4.I point 7).
func (c *Checker) checkFunDecl(f *ast.FunDecl) {
	params := make([]types.Param, len(f.Params))
	for i, p := range f.Params {
		params[i] = types.Param{Name: p.Name, Type: c.resolveTypeRef(p.Type)}
	}
	var declaredRet types.Type
	if f.Ret != nil {
		declaredRet = c.resolveTypeRef(f.Ret)
	}

	fnTy := types.Function{Params: params, Ret: declaredRet}
	entity := &scope.Entity{Name: scope.NewFullPath(f.Name), Decl: f, Type: fnTy, Mutable: false}
	c.stack.TryPushEntity(entity, f.Sp)

	c.stack.PushScope(scope.Function, f, declaredRet)
	for i, p := range f.Params {
		pEntity := &scope.Entity{Name: scope.NewFullPath(p.Name), Decl: p, Type: params[i].Type, Mutable: false}
		c.stack.TryPushEntity(pEntity, p.Sp)
	}

	bodyTy := c.checkDeclSeq(f.Body.Decls)
	inferredRet := c.stack.Top().ReturnType
	poppedTy := c.stack.PopScope(bodyTy, f)
	f.Body.Meta().Type = poppedTy

	retTy := poppedTy
	switch {
	case declaredRet != nil:
		retTy = declaredRet
	case inferredRet != nil:
		retTy = inferredRet
	}
	fnTy.Ret = retTy
	entity.Type = fnTy
	f.Meta().Type = fnTy
}

// checkExpr applies the generic per-expression contract (spec.md §4.I
// points 1-3) around the node-specific type computation: report
// unreachability at most once per scope, compute and store the type, and
// propagate `never` into the enclosing scope's flag.
func (c *Checker) checkExpr(e ast.Expr) types.Type {
	c.stack.CheckUnreachable(e)
	ty := c.computeExprType(e)
	if _, never := ty.(types.Never); never {
		c.stack.MarkEncounteredNever()
	}
	e.Meta().Type = ty
	return ty
}

func (c *Checker) computeExprType(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.IntLit:
		return types.Int{}
	case *ast.FloatLit:
		return types.Float{}
	case *ast.StringLit:
		return types.String{}
	case *ast.BoolLit:
		return types.Bool{}
	case *ast.Ident:
		return c.checkIdent(e)
	case *ast.UnaryExpr:
		return c.checkUnaryExpr(e)
	case *ast.BinaryExpr:
		return c.checkBinaryExpr(e)
	case *ast.AssignExpr:
		return c.checkAssignExpr(e)
	case *ast.CallExpr:
		return c.checkCallExpr(e)
	case *ast.BlockExpr:
		return c.checkBlockExpr(e)
	case *ast.IfExpr:
		return c.checkIfExpr(e)
	case *ast.ReturnExpr:
		return c.checkReturnExpr(e)
	default:
		panic("check: unhandled expression type")
	}
}

func (c *Checker) checkIdent(id *ast.Ident) types.Type {
	found := c.stack.FindEntity(scope.NewPath(false, id.Name))
	if ent, ok := found.Option(); ok {
		return ent.Type
	}
	if _, ok := found.NotAvailable(); ok {
		c.log.Errorf(id.Sp, "'%s' is not accessible here: it is a mutable binding captured from outside an enclosing function", id.Name)
		return types.Invalid{}
	}
	c.log.Errorf(id.Sp, "unknown identifier '%s'", id.Name)
	return types.Invalid{}
}

func (c *Checker) checkUnaryExpr(u *ast.UnaryExpr) types.Type {
	operandTy := types.Reduce(c.checkExpr(u.Operand))
	if ret, ok := c.stack.UnOpType(u.Op, operandTy); ok {
		return ret
	}
	if !types.Unreal(operandTy) {
		c.log.Errorf(u.Sp, "no operator '%s%s' defined", u.Op, operandTy)
	}
	return types.Invalid{}
}

func (c *Checker) checkBinaryExpr(b *ast.BinaryExpr) types.Type {
	leftTy := types.Reduce(c.checkExpr(b.Left))
	rightTy := types.Reduce(c.checkExpr(b.Right))
	if ret, ok := c.stack.BinOpType(leftTy, b.Op, rightTy); ok {
		return ret
	}
	if !types.Unreal(leftTy) && !types.Unreal(rightTy) {
		c.log.Errorf(b.Sp, "no operator '%s %s %s' defined", leftTy, b.Op, rightTy)
	}
	return types.Invalid{}
}

// checkAssignExpr resolves the target as a mutable entity (spec.md §4.I
// point 4) before checking the value against its type. Assignment is
// always void-typed.
func (c *Checker) checkAssignExpr(a *ast.AssignExpr) types.Type {
	var targetTy types.Type = types.Invalid{}
	id, ok := a.Target.(*ast.Ident)
	if !ok {
		c.log.Errorf(a.Target.Span(), "assignment target must be a name")
	} else {
		found := c.stack.FindEntity(scope.NewPath(false, id.Name))
		if ent, ok := found.Option(); ok {
			if !ent.Mutable {
				c.log.Errorf(a.Target.Span(), "cannot assign to '%s': declared with 'let', not 'var'", id.Name)
			}
			targetTy = ent.Type
		} else if _, ok := found.NotAvailable(); ok {
			c.log.Errorf(a.Target.Span(), "'%s' is not accessible here: it is a mutable binding captured from outside an enclosing function", id.Name)
		} else {
			c.log.Errorf(a.Target.Span(), "unknown identifier '%s'", id.Name)
		}
		id.Meta().Type = targetTy
	}
	valueTy := c.checkExpr(a.Value)
	c.stack.ExpectEq(valueTy, targetTy, a.Value.Span())
	return types.Void{}
}

func (c *Checker) checkCallExpr(call *ast.CallExpr) types.Type {
	calleeTy := types.Reduce(c.checkExpr(call.Callee))
	fn, ok := calleeTy.(types.Function)
	if !ok {
		for _, arg := range call.Args {
			c.checkExpr(arg)
		}
		if !types.Unreal(calleeTy) {
			c.log.Errorf(call.Callee.Span(), "'%s' is not callable", calleeTy)
		}
		return types.Invalid{}
	}
	if len(call.Args) != len(fn.Params) {
		c.log.Errorf(call.Sp, "expected %d argument(s), got %d", len(fn.Params), len(call.Args))
	}
	for i, arg := range call.Args {
		argTy := c.checkExpr(arg)
		if i < len(fn.Params) {
			c.stack.ExpectEq(argTy, fn.Params[i].Type, arg.Span())
		}
	}
	return fn.Ret
}

func (c *Checker) checkBlockExpr(b *ast.BlockExpr) types.Type {
	c.stack.PushScope(scope.Opaque, b, nil)
	last := c.checkDeclSeq(b.Decls)
	return c.stack.PopScope(last, b)
}

// checkIfExpr applies spec.md §4.I point 9: the never arm never wins;
// absent two nevers, both arms must be convertible and the reduced
// common type is returned. A missing else is treated as an implicit
// void arm, so it still enforces "both arms void or unreal".
func (c *Checker) checkIfExpr(i *ast.IfExpr) types.Type {
	condTy := c.checkExpr(i.Cond)
	c.stack.ExpectEq(condTy, types.Bool{}, i.Cond.Span())

	// The arms are checked independently: a never-typed arm must not make
	// the other arm unreachable. Whether the enclosing scope has hit
	// `never` is decided by the if-expression's own type, in checkExpr.
	top := c.stack.Top()
	neverBefore := top.HasEncounteredNever
	thenTy := c.checkExpr(i.Then)
	top.HasEncounteredNever = neverBefore
	var elseTy types.Type = types.Void{}
	if i.Else != nil {
		elseTy = c.checkExpr(i.Else)
		top.HasEncounteredNever = neverBefore
	}

	if _, never := elseTy.(types.Never); never {
		return thenTy
	}
	if _, never := thenTy.(types.Never); never {
		return elseTy
	}
	if !types.Convertible(thenTy, elseTy) {
		c.log.Errorf(i.Sp, "if/else arms have incompatible types '%s' and '%s'", thenTy, elseTy)
		return types.Invalid{}
	}
	return types.Reduce(elseTy)
}

// checkReturnExpr evaluates the (optional) return value, feeds it into the
// nearest enclosing Function scope's return-type inference, and always
// types as `never` (spec.md §4.I point 8).
func (c *Checker) checkReturnExpr(r *ast.ReturnExpr) types.Type {
	var ty types.Type = types.Void{}
	if r.Value != nil {
		ty = c.checkExpr(r.Value)
	}
	c.stack.InferReturnType(scope.ByLevel(scope.Function), ty, r)
	return types.Never{}
}

func (c *Checker) resolveTypeRef(t ast.TypeRef) types.Type {
	switch t := t.(type) {
	case *ast.NamedTypeRef:
		found := c.stack.FindType(scope.NewPath(false, t.Name))
		if ty, ok := found.Option(); ok {
			return ty
		}
		c.log.Errorf(t.Sp, "unknown type '%s'", t.Name)
		return types.Invalid{}
	case *ast.FunctionTypeRef:
		params := make([]types.Param, len(t.Params))
		for i, p := range t.Params {
			params[i] = types.Param{Type: c.resolveTypeRef(p)}
		}
		var ret types.Type = types.Void{}
		if t.Ret != nil {
			ret = c.resolveTypeRef(t.Ret)
		}
		return types.Function{Params: params, Ret: ret}
	default:
		panic("check: unhandled type reference")
	}
}
