package schema

import (
	"fmt"

	"github.com/go-mysql-org/go-mysql/mysql"
)

// ColumnType is a column type code as carried in table map events.
type ColumnType byte

const (
	TypeDecimal    = ColumnType(mysql.MYSQL_TYPE_DECIMAL)
	TypeTiny       = ColumnType(mysql.MYSQL_TYPE_TINY)
	TypeShort      = ColumnType(mysql.MYSQL_TYPE_SHORT)
	TypeLong       = ColumnType(mysql.MYSQL_TYPE_LONG)
	TypeFloat      = ColumnType(mysql.MYSQL_TYPE_FLOAT)
	TypeDouble     = ColumnType(mysql.MYSQL_TYPE_DOUBLE)
	TypeNull       = ColumnType(mysql.MYSQL_TYPE_NULL)
	TypeTimestamp  = ColumnType(mysql.MYSQL_TYPE_TIMESTAMP)
	TypeLongLong   = ColumnType(mysql.MYSQL_TYPE_LONGLONG)
	TypeInt24      = ColumnType(mysql.MYSQL_TYPE_INT24)
	TypeDate       = ColumnType(mysql.MYSQL_TYPE_DATE)
	TypeTime       = ColumnType(mysql.MYSQL_TYPE_TIME)
	TypeDatetime   = ColumnType(mysql.MYSQL_TYPE_DATETIME)
	TypeYear       = ColumnType(mysql.MYSQL_TYPE_YEAR)
	TypeNewDate    = ColumnType(mysql.MYSQL_TYPE_NEWDATE)
	TypeVarchar    = ColumnType(mysql.MYSQL_TYPE_VARCHAR)
	TypeBit        = ColumnType(mysql.MYSQL_TYPE_BIT)
	TypeTimestamp2 = ColumnType(mysql.MYSQL_TYPE_TIMESTAMP2)
	TypeDatetime2  = ColumnType(mysql.MYSQL_TYPE_DATETIME2)
	TypeTime2      = ColumnType(mysql.MYSQL_TYPE_TIME2)
	TypeJSON       = ColumnType(mysql.MYSQL_TYPE_JSON)
	TypeNewDecimal = ColumnType(mysql.MYSQL_TYPE_NEWDECIMAL)
	TypeEnum       = ColumnType(mysql.MYSQL_TYPE_ENUM)
	TypeSet        = ColumnType(mysql.MYSQL_TYPE_SET)
	TypeTinyBlob   = ColumnType(mysql.MYSQL_TYPE_TINY_BLOB)
	TypeMediumBlob = ColumnType(mysql.MYSQL_TYPE_MEDIUM_BLOB)
	TypeLongBlob   = ColumnType(mysql.MYSQL_TYPE_LONG_BLOB)
	TypeBlob       = ColumnType(mysql.MYSQL_TYPE_BLOB)
	TypeVarString  = ColumnType(mysql.MYSQL_TYPE_VAR_STRING)
	TypeString     = ColumnType(mysql.MYSQL_TYPE_STRING)
	TypeGeometry   = ColumnType(mysql.MYSQL_TYPE_GEOMETRY)
)

var typeNames = map[ColumnType]string{
	TypeDecimal:    "DECIMAL",
	TypeTiny:       "TINY",
	TypeShort:      "SHORT",
	TypeLong:       "LONG",
	TypeFloat:      "FLOAT",
	TypeDouble:     "DOUBLE",
	TypeNull:       "NULL",
	TypeTimestamp:  "TIMESTAMP",
	TypeLongLong:   "LONGLONG",
	TypeInt24:      "INT24",
	TypeDate:       "DATE",
	TypeTime:       "TIME",
	TypeDatetime:   "DATETIME",
	TypeYear:       "YEAR",
	TypeNewDate:    "NEWDATE",
	TypeVarchar:    "VARCHAR",
	TypeBit:        "BIT",
	TypeTimestamp2: "TIMESTAMP2",
	TypeDatetime2:  "DATETIME2",
	TypeTime2:      "TIME2",
	TypeJSON:       "JSON",
	TypeNewDecimal: "NEWDECIMAL",
	TypeEnum:       "ENUM",
	TypeSet:        "SET",
	TypeTinyBlob:   "TINY_BLOB",
	TypeMediumBlob: "MEDIUM_BLOB",
	TypeLongBlob:   "LONG_BLOB",
	TypeBlob:       "BLOB",
	TypeVarString:  "VAR_STRING",
	TypeString:     "STRING",
	TypeGeometry:   "GEOMETRY",
}

func (t ColumnType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

// Decodable reports whether row values of this type can be decoded.
func (t ColumnType) Decodable() bool {
	switch t {
	case TypeTiny, TypeShort, TypeInt24, TypeLong, TypeLongLong,
		TypeFloat, TypeDouble, TypeNewDecimal, TypeYear,
		TypeVarchar, TypeVarString, TypeString, TypeEnum, TypeSet,
		TypeBlob, TypeGeometry, TypeJSON, TypeBit,
		TypeDate, TypeTime, TypeDatetime, TypeTimestamp,
		TypeTime2, TypeDatetime2, TypeTimestamp2:
		return true
	}
	return false
}

// Numeric columns are the ones covered by the signedness optional metadata.
func (t ColumnType) Numeric() bool {
	switch t {
	case TypeTiny, TypeShort, TypeInt24, TypeLong, TypeLongLong,
		TypeFloat, TypeDouble, TypeNewDecimal:
		return true
	}
	return false
}
