package cloud

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/smithy-go"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported cloud provider")
	ErrMissingCredentials  = errors.New("vm has no cloud credentials")
	ErrInstanceNotFound    = errors.New("cloud instance not found")
)

var awsAuthCodes = map[string]struct{}{
	"AuthFailure":                 {},
	"UnauthorizedOperation":       {},
	"InvalidClientTokenId":        {},
	"SignatureDoesNotMatch":       {},
	"ExpiredToken":                {},
	"UnrecognizedClientException": {},
}

// IsAuthError reports whether err means the pooled client's credentials are no longer valid.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return true
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		_, ok := awsAuthCodes[apiErr.ErrorCode()]
		return ok
	}

	return false
}
