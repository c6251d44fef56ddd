// Package registry resolves images pushed to the Whole Tale registry.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	xe "github.com/whole-tale/gwvolman/pkg/errors"
)

type Registry interface {
	// Host is the host (and port) of the registry, like "registry.wholetale.org".
	Host() string

	// Ref is the reference of a repository in the registry: "{host}/{repository}".
	Ref(repository string) string

	// Digest resolves a reference into a digest reference "{host}/{repository}@sha256:...".
	Digest(ctx context.Context, ref string) (string, error)

	// Authenticator is the credential of the registry.
	Authenticator() authn.Authenticator
}

type registry struct {
	host     string
	auth     authn.Authenticator
	insecure bool
}

// HostOf returns the host part of a url, like "registry.wholetale.org" for
// "https://registry.wholetale.org".
//
// A value without scheme is taken as a host as it is.
func HostOf(registryUrl string) (string, error) {
	if !strings.Contains(registryUrl, "://") {
		return strings.TrimSuffix(registryUrl, "/"), nil
	}
	u, err := url.Parse(registryUrl)
	if err != nil {
		return "", xe.Wrap(err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in registry url: %s", registryUrl)
	}
	return u.Host, nil
}

// New returns a Registry.
//
// # Args
//
// - host: registry host.
//
// - user, password: basic auth credential. When user is empty, it is anonymous.
//
// - insecure: access the registry with plain http.
func New(host string, user string, password string, insecure bool) Registry {
	var auth authn.Authenticator = authn.Anonymous
	if user != "" {
		auth = &authn.Basic{Username: user, Password: password}
	}
	return &registry{host: host, auth: auth, insecure: insecure}
}

func (r *registry) Host() string {
	return r.host
}

func (r *registry) Ref(repository string) string {
	return r.host + "/" + repository
}

func (r *registry) Authenticator() authn.Authenticator {
	return r.auth
}

func (r *registry) Digest(ctx context.Context, ref string) (string, error) {
	opts := []name.Option{}
	if r.insecure {
		opts = append(opts, name.Insecure)
	}
	parsed, err := name.ParseReference(ref, opts...)
	if err != nil {
		return "", xe.Wrap(err)
	}

	desc, err := remote.Head(
		parsed, remote.WithContext(ctx), remote.WithAuth(r.auth),
	)
	if err != nil {
		return "", xe.Wrap(err)
	}
	return parsed.Context().Digest(desc.Digest.String()).String(), nil
}
