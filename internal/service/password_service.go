package service

import "secgate/internal/domain"

type PasswordService interface {
	Hash(password string) (hash, salt, paramsJSON []byte, algo string, ver int, err error)
	Verify(password string, cred *domain.PasswordCredential) (rehashNeeded bool, ok bool)
}
