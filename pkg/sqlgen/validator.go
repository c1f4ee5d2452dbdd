package sqlgen

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/isaqe-io/isaqe-engine/pkg/apperrors"
	"github.com/isaqe-io/isaqe-engine/pkg/config"
)

// Validator enforces the read-only contract on generated SQL: exactly one
// plain SELECT with a FROM clause, a literal LIMIT at or below max_limit, and
// no calls to disallowed functions anywhere in the tree.
type Validator struct {
	maxLimit   int
	disallowed map[string]struct{}
}

// NewValidator creates a validator from the Postgres limits and the guardrail
// function denylist.
func NewValidator(pgCfg config.PostgresConfig, guardCfg config.GuardrailConfig) *Validator {
	disallowed := make(map[string]struct{}, len(guardCfg.DisallowedFunctions))
	for _, fn := range guardCfg.DisallowedFunctions {
		disallowed[strings.ToLower(fn)] = struct{}{}
	}
	return &Validator{maxLimit: pgCfg.MaxLimit, disallowed: disallowed}
}

// ValidateAndSanitize parses sql with the Postgres grammar, applies the
// read-only rules, injects or clamps LIMIT, and returns the canonical
// deparsed statement.
func (v *Validator) ValidateAndSanitize(sql string) (string, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidSQL, err)
	}
	if len(result.Stmts) != 1 {
		return "", fmt.Errorf("%w: expected one statement, got %d", apperrors.ErrInvalidSQL, len(result.Stmts))
	}

	// Set operations (UNION and friends) parse as SelectStmt too; only a
	// plain SELECT passes.
	sel := result.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil || sel.Op != pg_query.SetOperation_SETOP_NONE {
		return "", apperrors.ErrNotSelect
	}
	if len(sel.FromClause) == 0 {
		return "", apperrors.ErrMissingFrom
	}

	if err := v.enforceLimit(sel); err != nil {
		return "", err
	}
	if err := v.enforceDisallowedFunctions(result.Stmts[0].GetStmt()); err != nil {
		return "", err
	}

	sanitized, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("%w: deparse: %v", apperrors.ErrInvalidSQL, err)
	}
	return sanitized, nil
}

// enforceLimit injects LIMIT max_limit when the statement has none, clamps a
// larger literal down to max_limit, and rejects anything that is not an
// integer literal.
func (v *Validator) enforceLimit(sel *pg_query.SelectStmt) error {
	if sel.LimitCount == nil {
		sel.LimitCount = intConstNode(int32(v.maxLimit))
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
		return nil
	}

	aConst := sel.LimitCount.GetAConst()
	if aConst == nil || aConst.GetIval() == nil {
		return apperrors.ErrNonLiteralLimit
	}
	if int(aConst.GetIval().GetIval()) > v.maxLimit {
		aConst.Val = &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(v.maxLimit)}}
	}
	return nil
}

// enforceDisallowedFunctions walks the whole parse tree, so a denied function
// is caught in the target list, WHERE clause, subqueries and CTEs alike.
func (v *Validator) enforceDisallowedFunctions(root *pg_query.Node) error {
	if len(v.disallowed) == 0 {
		return nil
	}
	var banned string
	walkParseTree(root.ProtoReflect(), func(m protoreflect.Message) bool {
		call, ok := m.Interface().(*pg_query.FuncCall)
		if !ok {
			return true
		}
		name := functionName(call)
		if _, hit := v.disallowed[name]; hit {
			banned = name
			return false
		}
		return true
	})
	if banned != "" {
		return fmt.Errorf("%w: %s", apperrors.ErrDisallowedFunction, banned)
	}
	return nil
}

// walkParseTree visits every populated message in a parse tree depth first.
// The visit callback returns false to stop the walk. Returns false once
// stopped so callers up the stack unwind.
func walkParseTree(m protoreflect.Message, visit func(protoreflect.Message) bool) bool {
	if !visit(m) {
		return false
	}
	stopped := false
	m.Range(func(fd protoreflect.FieldDescriptor, value protoreflect.Value) bool {
		switch {
		case fd.IsList():
			if fd.Kind() != protoreflect.MessageKind {
				return true
			}
			list := value.List()
			for i := 0; i < list.Len(); i++ {
				if !walkParseTree(list.Get(i).Message(), visit) {
					stopped = true
					return false
				}
			}
		case fd.IsMap():
			return true
		case fd.Kind() == protoreflect.MessageKind:
			if !walkParseTree(value.Message(), visit) {
				stopped = true
				return false
			}
		}
		return true
	})
	return !stopped
}

// functionName returns the lowercased final segment of a possibly
// schema-qualified function name, so pg_catalog.pg_sleep matches a pg_sleep
// denylist entry.
func functionName(call *pg_query.FuncCall) string {
	parts := call.GetFuncname()
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(parts[len(parts)-1].GetString_().GetSval())
}

func intConstNode(n int32) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: n}},
				Location: -1,
			},
		},
	}
}
