package apperr

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const mysqlDuplicateEntry = 1062

// Classify normalizes any error into an *Error.  Errors that are already
// classified pass through; known driver, token and framework errors become
// operational; everything else becomes Internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return Wrap(err, DuplicateKey, "Duplicate field value: "+duplicateValue(myErr.Message)+". Please use another value!")
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fe.Field()+" failed on "+fe.Tag())
		}
		return Wrap(err, Validation, "Invalid input data. "+strings.Join(msgs, ". "))
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return Wrap(err, Authentication, "Your token has expired! Please log in again.")
	}
	if isJWTError(err) {
		return Wrap(err, Authentication, "Invalid token. Please log in again!")
	}

	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return Wrap(err, InvalidReference, "Invalid value: "+numErr.Num)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, Internal, "request timed out")
	}
	return Wrap(err, Internal, "Something went very wrong!")
}

func isJWTError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrSignatureInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	var kind Kind
	switch he.Code {
	case http.StatusNotFound:
		kind = NotFound
	case http.StatusUnauthorized:
		kind = Authentication
	case http.StatusForbidden:
		kind = Authorization
	case http.StatusTooManyRequests:
		kind = RateLimited
	case http.StatusConflict:
		kind = DuplicateKey
	default:
		if he.Code >= 500 {
			kind = Internal
		} else {
			kind = BadRequest
		}
	}
	e := Wrap(he, kind, msg)
	e.Status = he.Code
	return e
}

// duplicateValue pulls the offending value out of
// "Duplicate entry 'x' for key 'tours.name'".
func duplicateValue(msg string) string {
	start := strings.Index(msg, "'")
	if start < 0 {
		return msg
	}
	end := strings.Index(msg[start+1:], "'")
	if end < 0 {
		return msg
	}
	return msg[start+1 : start+1+end]
}
