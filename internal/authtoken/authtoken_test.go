package authtoken

import (
	"crypto/rand"
	"testing"
	"time"

	biscuit "github.com/biscuit-auth/biscuit-go/v2"
)

func newRootKeypair(t *testing.T) (PrivateKey, PublicKey) {
	t.Helper()
	priv, pub := biscuit.GenerateNewKeypair(rand.Reader)
	return priv, pub
}

// TestOperationAttenuationIsDirectional covers the "get"/"put" half of
// invariant 8: a token attenuated to one operation authorizes exactly
// that operation, and is denied for the other.
func TestOperationAttenuationIsDirectional(t *testing.T) {
	priv, pub := newRootKeypair(t)
	root, err := Mint(priv, rand.Reader)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	future := time.Now().Add(time.Hour)
	getToken, err := Attenuate(root, rand.Reader, "get", "x", future)
	if err != nil {
		t.Fatalf("Attenuate: %v", err)
	}

	if err := Authorize(getToken, pub, "get", "x", time.Now()); err != nil {
		t.Fatalf("Authorize(get) denied a get-attenuated token: %v", err)
	}
	if err := Authorize(getToken, pub, "put", "x", time.Now()); err == nil {
		t.Fatalf("Authorize(put) allowed a get-attenuated token")
	}

	putToken, err := Attenuate(root, rand.Reader, "put", "x", future)
	if err != nil {
		t.Fatalf("Attenuate: %v", err)
	}
	if err := Authorize(putToken, pub, "put", "x", time.Now()); err != nil {
		t.Fatalf("Authorize(put) denied a put-attenuated token: %v", err)
	}
	if err := Authorize(putToken, pub, "get", "x", time.Now()); err == nil {
		t.Fatalf("Authorize(get) allowed a put-attenuated token")
	}
}

// TestCacheAttenuationDeniesOtherCaches covers the cache-id half of
// invariant 8.
func TestCacheAttenuationDeniesOtherCaches(t *testing.T) {
	priv, pub := newRootKeypair(t)
	root, err := Mint(priv, rand.Reader)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	token, err := Attenuate(root, rand.Reader, "get", "x", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Attenuate: %v", err)
	}
	if err := Authorize(token, pub, "get", "x", time.Now()); err != nil {
		t.Fatalf("Authorize denied a matching cache id: %v", err)
	}
	if err := Authorize(token, pub, "get", "y", time.Now()); err == nil {
		t.Fatalf("Authorize allowed a non-matching cache id")
	}
}

// TestExpiredTokenIsDenied covers the time-constraint half of
// invariant 8.
func TestExpiredTokenIsDenied(t *testing.T) {
	priv, pub := newRootKeypair(t)
	root, err := Mint(priv, rand.Reader)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	token, err := Attenuate(root, rand.Reader, "get", "x", past)
	if err != nil {
		t.Fatalf("Attenuate: %v", err)
	}
	if err := Authorize(token, pub, "get", "x", time.Now()); err == nil {
		t.Fatalf("Authorize allowed a token whose expiry has already passed")
	}
}
