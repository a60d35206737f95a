package utils

import (
	"golang.org/x/crypto/bcrypt"

	"photory/internal/domain"
)

// bcrypt 只看前 72 字节，超出直接拒绝（按字节计，多字节字符会更早触顶）
const maxPasswordBytes = 72

// BcryptHasher 实现 domain.PasswordHasher；Cost 为 0 时用 bcrypt.DefaultCost
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(pw string) (string, error) {
	if len(pw) > maxPasswordBytes {
		return "", domain.ErrPasswordTooLong
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Verify(pw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pw)) == nil
}
