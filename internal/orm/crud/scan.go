package crud

import (
	"database/sql"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// scanRows scans every row into a Row keyed by the result column names.
// Driver byte slices are copied into strings: sql.RawBytes-like buffers are
// reused between rows, and text columns arrive as []byte from some drivers.
// NUMERIC and DECIMAL columns delivered as text become pgtype.Numeric so the
// exact decimal survives until it is assigned.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	decimal := make([]bool, len(columns))
	for i, ct := range types {
		decimal[i] = isDecimalType(ct.DatabaseTypeName())
	}

	results := []Row{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Row, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if s, ok := v.(string); ok && decimal[i] {
				var n pgtype.Numeric
				if err := n.Scan(s); err == nil {
					record[col] = n
					continue
				}
			}
			record[col] = v
		}

		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func isDecimalType(name string) bool {
	switch strings.ToUpper(name) {
	case "NUMERIC", "DECIMAL":
		return true
	}
	return false
}
