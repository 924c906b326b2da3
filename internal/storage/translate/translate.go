// Package translate maps backend failures onto the filesystem error taxonomy.
package translate

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	smithy "github.com/aws/smithy-go"

	"github.com/objectfs/s3vfs/pkg/errors"
)

var apiCodes = map[string]errors.ErrorCode{
	"NoSuchKey":         errors.ErrCodeNotFound,
	"NotFound":          errors.ErrCodeNotFound,
	"NoSuchBucket":      errors.ErrCodeNotFound,
	"NotFoundException": errors.ErrCodeNotFound,

	"AccessDenied":          errors.ErrCodeAccessDenied,
	"AccessDeniedException": errors.ErrCodeAccessDenied,
	"AllAccessDisabled":     errors.ErrCodeAccessDenied,
	"Forbidden":             errors.ErrCodeAccessDenied,
	"ForbiddenException":    errors.ErrCodeAccessDenied,

	"InvalidAccessKeyId":          errors.ErrCodeAuthenticationFailed,
	"SignatureDoesNotMatch":       errors.ErrCodeAuthenticationFailed,
	"ExpiredToken":                errors.ErrCodeAuthenticationFailed,
	"InvalidToken":                errors.ErrCodeAuthenticationFailed,
	"TokenRefreshRequired":        errors.ErrCodeAuthenticationFailed,
	"UnrecognizedClientException": errors.ErrCodeAuthenticationFailed,
	"InvalidClientTokenId":        errors.ErrCodeAuthenticationFailed,

	"RequestTimeout":          errors.ErrCodeTimeout,
	"RequestTimeoutException": errors.ErrCodeTimeout,

	"BucketAlreadyExists":     errors.ErrCodeAlreadyExists,
	"BucketAlreadyOwnedByYou": errors.ErrCodeAlreadyExists,
	"ConflictException":       errors.ErrCodeAlreadyExists,

	"InvalidArgument":     errors.ErrCodeInvalidArgument,
	"InvalidBucketName":   errors.ErrCodeInvalidArgument,
	"KeyTooLongError":     errors.ErrCodeInvalidArgument,
	"BadRequestException": errors.ErrCodeInvalidArgument,

	"NotImplemented":   errors.ErrCodeNotSupported,
	"MethodNotAllowed": errors.ErrCodeNotSupported,
}

// Error translates err into a *errors.VFSError. Every non-nil input yields one;
// when err already carries a VFSError anywhere in its chain, that error is returned.
func Error(err error, component, operation, resource string) error {
	if err == nil {
		return nil
	}

	var vfsErr *errors.VFSError
	if stderrors.As(err, &vfsErr) {
		return vfsErr
	}

	code := Classify(err)
	return errors.Wrap(err, code, operation+" failed").
		WithComponent(component).
		WithOperation(operation).
		WithContext("resource", resource)
}

// Classify returns the taxonomy code for a raw backend error.
func Classify(err error) errors.ErrorCode {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, context.Canceled):
		return errors.ErrCodeCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrCodeTimeout
	}

	var canceled *smithy.CanceledError
	if stderrors.As(err, &canceled) {
		return errors.ErrCodeCancelled
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		if code, ok := apiCodes[apiErr.ErrorCode()]; ok {
			return code
		}
	}

	if status, ok := httpStatusCode(err); ok {
		switch status {
		case http.StatusNotFound:
			return errors.ErrCodeNotFound
		case http.StatusForbidden:
			return errors.ErrCodeAccessDenied
		case http.StatusUnauthorized:
			return errors.ErrCodeAuthenticationFailed
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return errors.ErrCodeTimeout
		case http.StatusConflict:
			return errors.ErrCodeAlreadyExists
		case http.StatusNotImplemented:
			return errors.ErrCodeNotSupported
		}
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return errors.ErrCodeTimeout
		}
		return errors.ErrCodeNetworkUnreachable
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrCodeTimeout
	}

	if isNetworkConnectionError(err) || isEndpointError(err) {
		return errors.ErrCodeNetworkUnreachable
	}

	return errors.ErrCodeUnknown
}

func isNetworkConnectionError(err error) bool {
	if stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, syscall.ECONNABORTED) ||
		stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.EHOSTUNREACH) || stderrors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

func isEndpointError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "resolve service endpoint") ||
		strings.Contains(msg, "invalid endpoint")
}

func httpStatusCode(err error) (int, bool) {
	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.HTTPStatusCode(), true
	}
	var statusErr interface{ HTTPStatusCode() int }
	if stderrors.As(err, &statusErr) {
		return statusErr.HTTPStatusCode(), true
	}
	return 0, false
}
