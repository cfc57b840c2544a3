package bridge

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/matterbridge-go/matterbridge/internal/apperr"
	"github.com/matterbridge-go/matterbridge/internal/kvstore"
)

const passwordKey = "password"

// persistPassword stores plain's bcrypt hash under the supervisor
// namespace's "password" key (spec.md §6 persisted keys), never the
// plaintext. A restart with no MATTERBRIDGE_PASSWORD set leaves the
// previously persisted hash untouched.
func (s *Supervisor) persistPassword(ns *kvstore.Namespace, plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Config(apperr.CodePasswordHashFailed, "hash frontend password", err)
	}
	return ns.Set(passwordKey, string(hash))
}

// checkPassword reports whether plain matches the persisted hash.
// Absent any persisted password, every value is accepted (frontend
// authentication is disabled).
func (s *Supervisor) checkPassword(plain string) (bool, error) {
	var hash string
	if err := s.ns.Get(passwordKey, &hash); err != nil {
		if apperr.Is(err, apperr.CodeKeyNotFound) {
			return true, nil
		}
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil, nil
}
