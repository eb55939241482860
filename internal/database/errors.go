package database

import (
	"errors"

	"roomwire/pkg/interfaces"
)

var (
	ErrManagerClosed   = errors.New("database manager is closed")
	ErrWriteTimeout    = errors.New("write operation timeout")
	ErrMessageNotFound = interfaces.ErrMessageNotFound
	ErrDuplicate       = errors.New("record already exists")
)
