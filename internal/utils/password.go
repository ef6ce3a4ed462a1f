package utils

import "golang.org/x/crypto/bcrypt"

// HashKey returns the bcrypt hash of a shared key using the given cost.
// Used by the ADMIN_KEY_HASH provisioning helper.
func HashKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyKey safely compares a bcrypt hash against a plain shared key.
func VerifyKey(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
