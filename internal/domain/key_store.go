package domain

import "time"

// Option names persisted in the options table.
const (
	OptionPasswordVerificationHash = "password_verification_hash"
	OptionPasswordDerivedKeySalt   = "password_derived_key_salt"
	OptionEncryptedDataKey         = "encrypted_data_key"
	OptionSnapshotInterval         = "history_snapshot_time_interval"
)

type Option struct {
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	ModifiedAt time.Time `json:"date_modified"`
}

type SetupPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Password  string `json:"password" validate:"required"`
	BrowserID string `json:"browser_id" validate:"required,max=100"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type OpenProtectedSessionRequest struct {
	Password string `json:"password" validate:"required"`
}

type ProtectedSessionResponse struct {
	SessionID string    `json:"protected_session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SnapshotIntervalRequest struct {
	Seconds int `json:"seconds" validate:"required,min=1"`
}
