// The table types live here so the query builders and every warehouse backend can
// import them without circular deps.
package storage

// ColumnType is a logical column type. Each Dialect renders it to a native type.
type ColumnType string

const (
	TypeInt       ColumnType = "int"
	TypeBigInt    ColumnType = "bigint"
	TypeFloat     ColumnType = "float"
	TypeVarchar   ColumnType = "varchar"
	TypeTimestamp ColumnType = "timestamp"
)

// TableRole classifies a table within the pipeline.
type TableRole string

const (
	RoleStaging   TableRole = "staging"
	RoleFact      TableRole = "fact"
	RoleDimension TableRole = "dimension"
)

type TableSpec struct {
	Name    string
	Role    TableRole
	Columns []ColumnSpec
}

type ColumnSpec struct {
	Name string
	Type ColumnType

	// PrimaryKey declares the column as the table's primary key. Whether the
	// warehouse enforces it is dialect-specific (Redshift does not).
	PrimaryKey bool

	// Identity marks an auto-generated surrogate key. Identity columns are
	// never written by loads or inserts.
	Identity bool

	NotNull bool
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (t TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// IsNumeric reports whether values of this type are numbers.
func (c ColumnType) IsNumeric() bool {
	switch c {
	case TypeInt, TypeBigInt, TypeFloat:
		return true
	default:
		return false
	}
}
