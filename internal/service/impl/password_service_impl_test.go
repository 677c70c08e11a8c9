package impl

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"secgate/internal/domain"
)

func hashToCredential(t *testing.T, svc *PasswordServiceImpl, password string) *domain.PasswordCredential {
	t.Helper()
	hash, salt, params, algo, ver, err := svc.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return &domain.PasswordCredential{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Algo:        algo,
		Hash:        hash,
		Salt:        salt,
		ParamsJSON:  params,
		PasswordVer: ver,
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	svc := NewPasswordServiceArgon2id()
	cred := hashToCredential(t, svc, "correct horse battery staple")

	rehash, ok := svc.Verify("correct horse battery staple", cred)
	if !ok {
		t.Fatal("correct password rejected")
	}
	if rehash {
		t.Error("fresh credential should not need a rehash")
	}

	if _, ok := svc.Verify("wrong password", cred); ok {
		t.Error("wrong password accepted")
	}
}

func TestPasswordHashSaltsDiffer(t *testing.T) {
	svc := NewPasswordServiceArgon2id()
	a := hashToCredential(t, svc, "same password")
	b := hashToCredential(t, svc, "same password")

	if bytes.Equal(a.Salt, b.Salt) {
		t.Error("two hashes reused a salt")
	}
	if bytes.Equal(a.Hash, b.Hash) {
		t.Error("two hashes of the same password are identical")
	}
}

func TestPasswordEmptyRejected(t *testing.T) {
	svc := NewPasswordServiceArgon2id()
	if _, _, _, _, _, err := svc.Hash(""); err != ErrEmptyPassword {
		t.Errorf("Hash(\"\") = %v, want ErrEmptyPassword", err)
	}
}

func TestPasswordRehashOnParameterChange(t *testing.T) {
	svc := NewPasswordServiceArgon2id()
	cred := hashToCredential(t, svc, "hunter2hunter2")

	// Rewrite the stored params to weaker costs, as if hashed by an older
	// deployment, and re-derive the hash under them.
	weak := argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}
	weakJSON, err := json.Marshal(weak)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cred.ParamsJSON = weakJSON
	cred.Hash = argon2.IDKey([]byte("hunter2hunter2"), cred.Salt, weak.Time, weak.Memory, weak.Threads, weak.KeyLen)

	rehash, ok := svc.Verify("hunter2hunter2", cred)
	if !ok {
		t.Fatal("password under old params rejected")
	}
	if !rehash {
		t.Error("old params should flag a rehash")
	}
}

func TestPasswordVerifyUnknownAlgo(t *testing.T) {
	svc := NewPasswordServiceArgon2id()
	cred := hashToCredential(t, svc, "some password")
	cred.Algo = "bcrypt"

	if _, ok := svc.Verify("some password", cred); ok {
		t.Error("unknown algorithm accepted")
	}
}
