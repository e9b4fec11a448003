package postgres

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// decimalToPgNumeric converts a fixed-point decimal.Decimal into the
// wire type pgx binds to a NUMERIC column. Scanning through the
// decimal's own string form (rather than its unscaled int64/exponent
// pair) keeps this agnostic to shopspring/decimal's internal
// representation.
func decimalToPgNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var num pgtype.Numeric
	if err := num.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return num, nil
}

// pgNumericToDecimal is the inverse of decimalToPgNumeric. A NULL
// column decodes to decimal.Zero rather than a nil pointer since every
// money field in this core is NOT NULL at the schema level.
func pgNumericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalPtrToPgNumeric(d *decimal.Decimal) (pgtype.Numeric, error) {
	if d == nil {
		return pgtype.Numeric{Valid: false}, nil
	}
	return decimalToPgNumeric(*d)
}

func pgNumericToDecimalPtr(n pgtype.Numeric) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	v := pgNumericToDecimal(n)
	return &v
}

func pgTextPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func fromPgTextPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

// nullableDecimal scans a nullable NUMERIC column into a
// shopspring/decimal.Decimal without requiring the caller to round-trip
// through pgtype.Numeric. Nullable money/rate columns (overdraft_limit,
// every loan_* field) scan into this rather than decimal.Decimal
// directly, since decimal.Decimal has no defined behavior for a NULL
// source value.
type nullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

func (n *nullableDecimal) Scan(src interface{}) error {
	if src == nil {
		n.Decimal, n.Valid = decimal.Zero, false
		return nil
	}
	var num pgtype.Numeric
	if err := num.Scan(src); err != nil {
		return err
	}
	n.Decimal = pgNumericToDecimal(num)
	n.Valid = num.Valid
	return nil
}
