package usercontext

// Locals keys shared by the auth middleware and controllers.
const (
	KeyUserContext = "USER_CONTEXT"
	KeyTokenCookie = "token"
	KeyAuthHeader  = "x-auth-token"
)
