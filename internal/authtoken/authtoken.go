// Package authtoken wraps github.com/biscuit-auth/biscuit-go/v2 behind
// the small surface btdt actually needs: mint a root token, attenuate
// it client-side to a single operation/cache/expiry, and authorize it
// server-side. Nothing else in the corpus uses Biscuit, so this
// package is the one place that API is touched; everything else deals
// in opaque token bytes.
package authtoken

import (
	"fmt"
	"io"
	"time"

	biscuit "github.com/biscuit-auth/biscuit-go/v2"

	"github.com/jgosmann/btdt/internal/btdterr"
)

// PublicKey and PrivateKey are the server's Biscuit root keypair.
type PublicKey = biscuit.PublicKey
type PrivateKey = biscuit.PrivateKey

// Mint creates a fresh root token with no capability facts of its
// own; every real restriction is added later by Attenuate. The rng
// argument is not used: the builder is created without it.
func Mint(root PrivateKey, rng io.Reader) ([]byte, error) {
	builder := biscuit.NewBuilder(root)
	b, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("minting token: %w", err)
	}
	out, err := b.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serializing token: %w", err)
	}
	return out, nil
}

// Attenuate appends a block restricting tokenBytes to one operation
// ("get" or "put"), one cache id, and an expiry exp — the three
// third-party-verifiable checks every outgoing request carries. The
// appended block is a pure restriction: it can only narrow what the
// token authorizes, never widen it, because the server evaluates
// every block's checks in sequence before reaching its own policy.
func Attenuate(tokenBytes []byte, rng io.Reader, operation, cacheID string, exp time.Time) ([]byte, error) {
	b, err := biscuit.Unmarshal(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing token: %v", btdterr.ErrAuthInvalid, err)
	}
	block := b.CreateBlock()
	if err := block.AddCheck(operationCheck(operation)); err != nil {
		return nil, fmt.Errorf("attenuating token: %w", err)
	}
	if err := block.AddCheck(cacheCheck(cacheID)); err != nil {
		return nil, fmt.Errorf("attenuating token: %w", err)
	}
	if err := block.AddCheck(expiryCheck(exp)); err != nil {
		return nil, fmt.Errorf("attenuating token: %w", err)
	}
	nb, err := b.Append(rng, block.Build())
	if err != nil {
		return nil, fmt.Errorf("appending attenuation block: %w", err)
	}
	out, err := nb.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serializing attenuated token: %w", err)
	}
	return out, nil
}

// Authorize verifies tokenBytes against root, asserts the operation,
// cache id, and current time the server actually observed, then
// evaluates the token's accumulated checks followed by an allow-all
// policy. A client-side attenuation's checks still apply: they run
// before the allow-all policy is ever reached, so a token attenuated
// to "get" fails authorization for a "put" request even though the
// server's own policy would otherwise allow it.
func Authorize(tokenBytes []byte, root PublicKey, operation, cacheID string, now time.Time) error {
	b, err := biscuit.Unmarshal(tokenBytes)
	if err != nil {
		return fmt.Errorf("%w: parsing token: %v", btdterr.ErrAuthInvalid, err)
	}
	authorizer, err := b.Authorizer(root)
	if err != nil {
		return fmt.Errorf("%w: building authorizer: %v", btdterr.ErrAuthInvalid, err)
	}
	if err := authorizer.AddFact(operationFact(operation)); err != nil {
		return fmt.Errorf("building authorizer: %w", err)
	}
	if err := authorizer.AddFact(cacheFact(cacheID)); err != nil {
		return fmt.Errorf("building authorizer: %w", err)
	}
	if err := authorizer.AddFact(timeFact(now)); err != nil {
		return fmt.Errorf("building authorizer: %w", err)
	}
	authorizer.AddPolicy(biscuit.DefaultAllowPolicy)
	if err := authorizer.Authorize(); err != nil {
		return fmt.Errorf("%w: %v", btdterr.ErrAuthDenied, err)
	}
	return nil
}

func operationFact(operation string) biscuit.Fact {
	return biscuit.Fact{Predicate: biscuit.Predicate{
		Name: "operation",
		IDs:  []biscuit.Term{biscuit.String(operation)},
	}}
}

func cacheFact(cacheID string) biscuit.Fact {
	return biscuit.Fact{Predicate: biscuit.Predicate{
		Name: "cache",
		IDs:  []biscuit.Term{biscuit.String(cacheID)},
	}}
}

func timeFact(t time.Time) biscuit.Fact {
	return biscuit.Fact{Predicate: biscuit.Predicate{
		Name: "time",
		IDs:  []biscuit.Term{biscuit.Date(t)},
	}}
}

// operationCheck restricts a block to requests whose asserted
// operation fact matches exactly.
func operationCheck(operation string) biscuit.Check {
	return biscuit.Check{Queries: []biscuit.Rule{{
		Head: biscuit.Predicate{Name: "operation_check"},
		Body: []biscuit.Predicate{{
			Name: "operation",
			IDs:  []biscuit.Term{biscuit.String(operation)},
		}},
	}}}
}

func cacheCheck(cacheID string) biscuit.Check {
	return biscuit.Check{Queries: []biscuit.Rule{{
		Head: biscuit.Predicate{Name: "cache_check"},
		Body: []biscuit.Predicate{{
			Name: "cache",
			IDs:  []biscuit.Term{biscuit.String(cacheID)},
		}},
	}}}
}

// expiryCheck requires the authorizer's asserted time fact to be
// strictly before exp.
func expiryCheck(exp time.Time) biscuit.Check {
	return biscuit.Check{Queries: []biscuit.Rule{{
		Head: biscuit.Predicate{Name: "expiry_check"},
		Body: []biscuit.Predicate{{
			Name: "time",
			IDs:  []biscuit.Term{biscuit.Variable("t")},
		}},
		Expressions: []biscuit.Expression{
			biscuit.NewExpression(
				biscuit.Value{Term: biscuit.Variable("t")},
				biscuit.Value{Term: biscuit.Date(exp)},
				biscuit.LessThan,
			),
		},
	}}}
}
