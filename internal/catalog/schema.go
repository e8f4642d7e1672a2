package catalog

// Column describes one attribute of a Schema: its name, type, and (for
// Varchar) a maximum length used only for storage sizing, not validation.
type Column struct {
	Name    string
	TypeID  TypeID
	Length  int // max length for Varchar; unused otherwise
}

// Schema is an ordered list of columns, shared by table tuples and index
// keys alike.
type Schema struct {
	Columns []Column
}

func NewSchema(columns []Column) *Schema {
	return &Schema{Columns: columns}
}

func (s *Schema) ColumnCount() int { return len(s.Columns) }

// ColumnIndex returns the position of name in the schema, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// CopySchema builds a new Schema containing only the named attrs, in the
// order given. Used to derive an index key schema from a table's tuple
// schema.
func (s *Schema) CopySchema(attrs []string) *Schema {
	cols := make([]Column, 0, len(attrs))
	for _, a := range attrs {
		if i := s.ColumnIndex(a); i >= 0 {
			cols = append(cols, s.Columns[i])
		}
	}
	return &Schema{Columns: cols}
}

// Tuple is a row of values positioned according to some Schema. It carries
// no schema reference itself — callers pair it with the Schema it was
// produced against, matching the teacher's own separation of row data from
// column metadata.
type Tuple struct {
	Values []Value
}

func NewTuple(values []Value) Tuple { return Tuple{Values: values} }

// Project extracts the values at the given schema's column positions
// within srcSchema, returning a new Tuple ordered like dstSchema.
func (t Tuple) Project(srcSchema, dstSchema *Schema) Tuple {
	out := make([]Value, len(dstSchema.Columns))
	for i, col := range dstSchema.Columns {
		if j := srcSchema.ColumnIndex(col.Name); j >= 0 {
			out[i] = t.Values[j]
		}
	}
	return Tuple{Values: out}
}
