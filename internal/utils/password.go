package utils

import "golang.org/x/crypto/bcrypt"

// HashOperatorKey returns the bcrypt hash of an operator key using the
// given cost.  The hash is what goes into OPERATOR_KEY_HASH.
func HashOperatorKey(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyOperatorKey safely compares a bcrypt hash and a presented key.
func VerifyOperatorKey(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
