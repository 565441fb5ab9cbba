package core

import "github.com/go-mysql-org/go-mysql/mysql"

type LifeCycle interface {
	Start() error

	Stop()
}

type Extractor interface {
	LifeCycle

	Binlog() string
	// Position is where a later run resumes without losing a transaction.
	Position() mysql.Position
}

type Transformer interface {
	LifeCycle

	CurPos() string
}

type Loader interface {
	LifeCycle

	LastBinlog() string
}
