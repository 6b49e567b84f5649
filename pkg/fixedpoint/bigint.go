package fixedpoint

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt is an arbitrary-precision integer column. It is stored as a decimal
// string so sqlite, postgres and mysql all round-trip it losslessly.
type BigInt struct {
	v big.Int
}

// NewBigInt wraps an existing big.Int value. A nil input yields zero.
func NewBigInt(i *big.Int) BigInt {
	var b BigInt
	if i != nil {
		b.v.Set(i)
	}
	return b
}

// FromInt64 returns a BigInt holding the given value.
func FromInt64(i int64) BigInt {
	var b BigInt
	b.v.SetInt64(i)
	return b
}

// Int returns a copy of the underlying value.
func (b BigInt) Int() *big.Int {
	return new(big.Int).Set(&b.v)
}

// Cmp compares against a plain big.Int.
func (b BigInt) Cmp(other *big.Int) int {
	return b.v.Cmp(other)
}

// Sign reports the sign of the value.
func (b BigInt) Sign() int {
	return b.v.Sign()
}

func (b BigInt) String() string {
	return b.v.String()
}

// Value implements driver.Valuer.
func (b BigInt) Value() (driver.Value, error) {
	return b.v.String(), nil
}

// Scan implements sql.Scanner.
func (b *BigInt) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		b.v.SetInt64(0)
		return nil
	case int64:
		b.v.SetInt64(v)
		return nil
	case string:
		return b.setString(v)
	case []byte:
		return b.setString(string(v))
	default:
		return fmt.Errorf("fixedpoint: cannot scan %T into BigInt", src)
	}
}

func (b *BigInt) setString(s string) error {
	if s == "" {
		b.v.SetInt64(0)
		return nil
	}
	if _, ok := b.v.SetString(s, 10); !ok {
		return fmt.Errorf("fixedpoint: invalid integer literal %q", s)
	}
	return nil
}

// GormDataType tells gorm how to store the column.
func (BigInt) GormDataType() string {
	return "string"
}

// MarshalJSON emits the value as a decimal string.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.v.String() + `"`), nil
}

// UnmarshalJSON accepts either a decimal string or a bare number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return b.setString(s)
}
