package authapi

// credentialsRequest is the body of register and login.
type credentialsRequest struct {
	Username string `json:"username" validate:"username"`
	Password string `json:"password" validate:"required"`
}

// loginRequest only checks presence; wrong credentials are a 401, not a 400.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type searchQuery struct {
	Username string `json:"username" validate:"username"`
}

type userIDResponse struct {
	UserID int64 `json:"user_id"`
}

type logoutAllResponse struct {
	SessionsRemoved int64 `json:"sessions_removed"`
}
