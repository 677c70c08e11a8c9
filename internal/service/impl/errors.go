package impl

import "errors"

var ErrEmptyPassword = errors.New("empty password")
