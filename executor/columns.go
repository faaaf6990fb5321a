package executor

import (
	"database/sql/driver"
	"strings"

	"github.com/tomyedwab/sqlcustom/binder"
	"github.com/tomyedwab/sqlcustom/coerce"
)

const (
	// unboundedLength is the length engines report for columns without a
	// size limit.
	unboundedLength = 0xFFFFFFFF
	// maxPrealloc caps the buffer allocated up front for one column.
	maxPrealloc = 64 << 10
)

// resultColumn holds the value of one result column for the row being
// fetched.
type resultColumn struct {
	name     string
	typeName string
	temporal coerce.TemporalKind

	buf    []byte
	length int
	null   bool

	when   coerce.Temporal
	whenOK bool
}

// bindColumns sizes one buffer per result column from the metadata the
// driver reports.
func bindColumns(rows driver.Rows) ([]*resultColumn, error) {
	names := rows.Columns()
	typed, hasTypes := rows.(driver.RowsColumnTypeDatabaseTypeName)
	sized, hasLengths := rows.(driver.RowsColumnTypeLength)

	cols := make([]*resultColumn, len(names))
	for i, name := range names {
		col := &resultColumn{name: name}
		if hasTypes {
			col.typeName = strings.ToUpper(typed.ColumnTypeDatabaseTypeName(i))
		}
		var length int64
		var bounded bool
		if hasLengths {
			length, bounded = sized.ColumnTypeLength(i)
		}
		kind, err := ColumnKind(name, col.typeName, length)
		if err != nil {
			return nil, err
		}
		col.temporal = kind
		if col.temporal == coerce.TemporalNone && bounded && length > 0 && length < unboundedLength {
			col.buf = make([]byte, 0, min(length, maxPrealloc))
		}
		cols[i] = col
	}
	return cols, nil
}

// ColumnKind classifies a result column from its database type name and
// declared length. Long-object columns are rejected with an
// UnsupportedTypeError.
func ColumnKind(name, typeName string, length int64) (coerce.TemporalKind, error) {
	typeName = strings.ToUpper(typeName)
	if isLongObject(typeName, length) {
		return coerce.TemporalNone, &binder.UnsupportedTypeError{What: "column " + name, Type: typeName}
	}
	return coerce.ColumnTemporalKind(typeName), nil
}

func isLongObject(typeName string, length int64) bool {
	switch typeName {
	case "LONGBLOB", "LONGTEXT":
		return true
	case "BLOB", "TEXT":
		return length == unboundedLength
	}
	return false
}

// store copies a fetched driver value into the column buffer.
func (c *resultColumn) store(v driver.Value) {
	cell := coerce.NewCell(v, c.temporal)
	c.null = cell.Null
	c.when, c.whenOK = cell.When, cell.TemporalOK
	c.buf = append(c.buf[:0], cell.Text...)
	c.length = len(cell.Text)
}

func (c *resultColumn) cell() coerce.Cell {
	return coerce.Cell{
		Text:       string(c.buf[:c.length]),
		Null:       c.null,
		When:       c.when,
		TemporalOK: c.whenOK,
	}
}

func (c *resultColumn) release() {
	c.buf = nil
	c.length = 0
}

func releaseColumns(cols []*resultColumn) {
	for _, c := range cols {
		c.release()
	}
}
