package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"ytgate/internal/config"
)

// ErrLookupFailed wraps any failure to resolve an owner reference. The calling
// operation is aborted; no key is issued against an unresolved owner.
var ErrLookupFailed = errors.New("owner directory lookup failed")

// Resolver turns an opaque owner reference (a numeric id or an @handle) into
// the owner's canonical identifier.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (int64, error)
}

type lookupResponse struct {
	OwnerID int64 `json:"owner_id"`
}

// HTTPResolver resolves handles against an external directory service.
// Purely numeric references are resolved locally without a network call.
type HTTPResolver struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPResolver creates a resolver from the directory configuration.
func NewHTTPResolver(cfg config.DirectoryConfig) *HTTPResolver {
	return &HTTPResolver{
		client:  resty.New().SetTimeout(cfg.TimeoutDuration),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("%w: empty owner reference", ErrLookupFailed)
	}

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}

	if r.baseURL == "" {
		return 0, fmt.Errorf("%w: no directory configured to resolve %q", ErrLookupFailed, ref)
	}

	var result lookupResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("ref", strings.TrimPrefix(ref, "@")).
		SetResult(&result).
		Get(r.baseURL + "/resolve")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%w: directory returned status %d", ErrLookupFailed, resp.StatusCode())
	}
	if result.OwnerID == 0 {
		return 0, fmt.Errorf("%w: unknown owner %q", ErrLookupFailed, ref)
	}
	return result.OwnerID, nil
}
