package model

// CredentialSource selects where backend login credentials come from.
type CredentialSource string

const (
	// CredentialsFromHeaders reads the un/pw headers of the inbound request.
	CredentialsFromHeaders CredentialSource = "headers"
	// CredentialsFromTable looks credentials up by backend host.
	CredentialsFromTable CredentialSource = "table"
)

// HTTPErrorPolicy decides how a non-2xx backend response carrying a
// well-formed error envelope is classified.
type HTTPErrorPolicy string

const (
	// HTTPErrorTransport treats every non-2xx response as a transport failure.
	HTTPErrorTransport HTTPErrorPolicy = "transport"
	// HTTPErrorLogical classifies a non-2xx response whose body parses as an
	// envelope with a responseStatus as a backend logical failure.
	HTTPErrorLogical HTTPErrorPolicy = "logical"
)

// Policy is the set of behavior switches applied to every call.
type Policy struct {
	CredentialSource CredentialSource
	VersionInjection bool
	StrictStatus     bool
	HTTPErrorPolicy  HTTPErrorPolicy
}

// DefaultPolicy returns the policy used when configuration leaves fields unset.
func DefaultPolicy() Policy {
	return Policy{
		CredentialSource: CredentialsFromHeaders,
		VersionInjection: true,
		StrictStatus:     true,
		HTTPErrorPolicy:  HTTPErrorTransport,
	}
}
