package ledger

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"backoffice/internal/domain"
	"backoffice/internal/domain/notify"
)

// DefaultLowStockRule fires when the balance is at or below the reorder threshold.
const DefaultLowStockRule = "quantity <= min_stock_level"

// LowStockRule is a compiled CEL predicate over quantity, min_stock_level and sku.
type LowStockRule struct {
	expr string
	prg  cel.Program
}

// CompileLowStockRule parses and type-checks expr. The expression must evaluate to bool.
func CompileLowStockRule(expr string) (*LowStockRule, error) {
	if expr == "" {
		expr = DefaultLowStockRule
	}

	env, err := cel.NewEnv(
		cel.Variable("quantity", cel.IntType),
		cel.Variable("min_stock_level", cel.IntType),
		cel.Variable("sku", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile low stock rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("low stock rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build low stock program: %w", err)
	}
	return &LowStockRule{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (r *LowStockRule) String() string {
	return r.expr
}

// Matches evaluates the rule for a unit at the given balance.
func (r *LowStockRule) Matches(u *Unit, quantity int64) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{
		"quantity":        quantity,
		"min_stock_level": u.MinStockLevel.Int64(),
		"sku":             u.SKU,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate low stock rule: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("low stock rule returned %T", out.Value())
	}
	return b, nil
}

// LowStockAlert returns an after-commit hook that notifies the admin channel
// when a decrement makes the rule start to hold for a unit.
// Decrements that stay within an already-low range do not repeat the alert.
func LowStockAlert(rule *LowStockRule, repo Repository, emitter *notify.Emitter) domain.Hook[*Entry] {
	return func(ctx context.Context, e *Entry) error {
		if !e.QuantityChange.IsNegative() {
			return nil
		}

		u, err := repo.GetUnit(ctx, e.UnitID)
		if err != nil {
			return fmt.Errorf("load unit for low stock check: %w", err)
		}

		nowLow, err := rule.Matches(u, e.QuantityAfter.Int64())
		if err != nil || !nowLow {
			return err
		}
		wasLow, err := rule.Matches(u, e.QuantityBefore.Int64())
		if err != nil || wasLow {
			return err
		}

		emitter.Notify(ctx, notify.Notification{
			Template:    notify.TemplateLowStock,
			Recipient:   notify.AdminChannel(),
			SubjectType: "unit",
			SubjectID:   u.ID,
			Payload: map[string]any{
				"sku":             u.SKU,
				"quantity":        e.QuantityAfter.Int64(),
				"min_stock_level": u.MinStockLevel.Int64(),
			},
		})
		return nil
	}
}
