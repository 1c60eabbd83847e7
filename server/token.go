package server

import (
	"context"
	"crypto/sha256"
	"io/ioutil"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// A TokenValidator decides who is behind an API key passed in the X-Api-Key
// header. An unknown or empty key gives a Client with RoleUnknown and no
// error. An error means the key could not be checked at all.
type TokenValidator interface {
	TokenValid(token string) (Client, error)
}

// Role is what a client may do. Each role includes the ones before it.
type Role int

const (
	RoleUnknown Role = iota
	RoleRead         // may look up checksum records
	RoleRun          // may run lambdas
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleRun:
		return "run"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// UnmarshalText parses a role name, ignoring case.
func (r *Role) UnmarshalText(text []byte) error {
	*r = atoRole(string(text))
	if *r == RoleUnknown {
		return errors.Errorf("unknown role %q", text)
	}
	return nil
}

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "read":
		return RoleRead
	case "run":
		return RoleRun
	case "admin":
		return RoleAdmin
	}
	return RoleUnknown
}

// A Client is a holder of an API key, usually a workflow scheduler.
type Client struct {
	Name string
	Role Role

	// Lambdas limits a client with RoleRun to the named lambdas. Empty
	// means every lambda. It does not apply to RoleAdmin.
	Lambdas []string
}

// MayRun reports whether c may run the lambda with the given name.
func (c Client) MayRun(name string) bool {
	switch {
	case c.Role < RoleRun:
		return false
	case c.Role >= RoleAdmin || len(c.Lambdas) == 0:
		return true
	}
	for _, l := range c.Lambdas {
		if l == name {
			return true
		}
	}
	return false
}

// NobodyValidator gives every key, including none, the admin role.
type NobodyValidator struct{}

// TokenValid implements TokenValidator.
func (NobodyValidator) TokenValid(token string) (Client, error) {
	return Client{Name: "nobody", Role: RoleAdmin}, nil
}

// clientFile is the layout of a token file, for example
//
//	[[client]]
//	name = "scheduler"
//	role = "run"
//	token = "f00dfeed"
//	lambdas = ["calculate-checksum", "validate-bagit"]
type clientFile struct {
	Client []struct {
		Name    string
		Role    Role
		Token   string
		Lambdas []string
	}
}

// NewListValidator returns a validator for the clients listed in the TOML
// document data. Every client needs a token, and no two clients may share
// one.
func NewListValidator(data string) (TokenValidator, error) {
	var f clientFile
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, errors.Wrap(err, "token file")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("token file: unknown keys %v", undecoded)
	}
	lv := make(listValidator)
	for _, c := range f.Client {
		if c.Token == "" {
			return nil, errors.Errorf("token file: client %q has no token", c.Name)
		}
		key := hashToken(c.Token)
		if _, ok := lv[key]; ok {
			return nil, errors.Errorf("token file: client %q reuses a token", c.Name)
		}
		lv[key] = Client{Name: c.Name, Role: c.Role, Lambdas: c.Lambdas}
	}
	return lv, nil
}

// NewListValidatorFile is NewListValidator on the contents of a file.
func NewListValidatorFile(fname string) (TokenValidator, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	return NewListValidator(string(data))
}

// listValidator is keyed by the hash of each token, so the tokens
// themselves are not kept in memory.
type listValidator map[[sha256.Size]byte]Client

func hashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}

func (lv listValidator) TokenValid(token string) (Client, error) {
	if token == "" {
		return Client{}, nil
	}
	return lv[hashToken(token)], nil
}

type clientKey struct{}

// withClient returns a copy of ctx carrying c.
func withClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client who made a request, as found by the
// authorization wrapper.
func ClientFrom(ctx context.Context) (Client, bool) {
	c, ok := ctx.Value(clientKey{}).(Client)
	return c, ok
}
