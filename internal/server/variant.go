package server

import "github.com/providentiaww/govbr-oidc-mock/internal/oidc"

// ResponseMode is how the authorize endpoint hands the code back.
type ResponseMode int

const (
	// ResponseForm renders an HTML form that submits code and state to the
	// redirect URI.
	ResponseForm ResponseMode = iota
	// ResponseRedirect answers with a 302 carrying code and state.
	ResponseRedirect
)

// Variant describes the endpoints one flavour of the mock mounts.
type Variant struct {
	Name      string
	Mode      ResponseMode
	Endpoints oidc.Endpoints
	// LoginPath accepts the simulated login form. Empty disables it.
	LoginPath string
}

const (
	discoveryPath = "/.well-known/openid-configuration"
	jwksPath      = "/.well-known/jwks.json"
	healthPath    = "/health"
)

// EAS is the form-post flavour used by the external authentication service.
var EAS = Variant{
	Name: "eas",
	Mode: ResponseForm,
	Endpoints: oidc.Endpoints{
		Authorize: "/authorize",
		Token:     "/token",
		JWKS:      jwksPath,
	},
}

// GovBR mimics the Gov.br login portal, with userinfo and a login page.
var GovBR = Variant{
	Name: "govbr",
	Mode: ResponseRedirect,
	Endpoints: oidc.Endpoints{
		Authorize: "/govbr/authorize",
		Token:     "/govbr/token",
		JWKS:      jwksPath,
		UserInfo:  "/govbr/userinfo",
	},
	LoginPath: "/govbr/login",
}
